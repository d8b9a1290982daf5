package combat

import "github.com/skyarena/server/internal/world"

// Resolve closes one turn over the arena.
//
// Acting characters are processed in id order. Damage is computed from the
// pre-turn stats and actions and applied only after every action has been
// evaluated, so two characters hitting each other both land their blow even
// if one of them dies. The only random input is the dodge roll, drawn from rng
// in processing order.
//
// Resolve mutates life and alive flags; it does not reset actions.
func Resolve(turn int, a *world.Arena, rng Rand) Outcome {
	chars := a.Characters()

	// Pre-turn copies: modifiers read these, never the live characters.
	pre := make(map[string]world.Character, len(chars))
	for _, c := range chars {
		pre[c.ID] = *c
	}

	out := Outcome{Turn: turn}
	damage := make(map[string]int)

	for _, c := range chars {
		if !c.Eligible() {
			continue
		}
		switch c.Action {
		case world.ActionFly:
			// Target ignored; relocation handles the rest.
			out.Flyers = append(out.Flyers, c.ID)
			out.Events = append(out.Events, Event{Turn: turn, Kind: EventFly, Actor: c.ID, Action: c.Action})

		case world.ActionHit:
			target := a.ResolveTarget(c)
			if target == nil || pre[target.ID].Action == world.ActionFly {
				out.Events = append(out.Events, Event{Turn: turn, Kind: EventNoop, Actor: c.ID, Action: c.Action, Target: c.Target})
				continue
			}
			ev := hit(pre[c.ID], pre[target.ID], rng)
			ev.Turn = turn
			damage[target.ID] += ev.Damage
			out.Events = append(out.Events, ev)

		case world.ActionBlock, world.ActionDodge:
			out.Events = append(out.Events, Event{Turn: turn, Kind: EventNoop, Actor: c.ID, Action: c.Action})
		}
	}

	for _, c := range chars {
		d, ok := damage[c.ID]
		if !ok || !c.Alive {
			continue
		}
		c.ApplyDamage(d)
		if !c.Alive {
			out.Deaths = append(out.Deaths, c.ID)
			out.Events = append(out.Events, Event{Turn: turn, Kind: EventDeath, Actor: c.ID, Action: c.Action})
		}
	}
	return out
}

// hit computes one HIT from attacker onto target using pre-turn values.
func hit(attacker, target world.Character, rng Rand) Event {
	ev := Event{Kind: EventHit, Actor: attacker.ID, Action: world.ActionHit, Target: target.ID}
	dmg := attacker.Strength

	switch target.Action {
	case world.ActionBlock:
		dmg /= 2
		ev.Kind = EventBlocked
	case world.ActionDodge:
		if p := DodgeChance(target.Speed, attacker.Speed); p > 0 && rng.Float64() < p {
			ev.Kind = EventEvaded
			return ev
		}
	}

	dmg -= target.Armor
	if dmg < 0 {
		dmg = 0
	}
	ev.Damage = dmg
	return ev
}

// DodgeChance returns the probability that a dodging defender avoids a hit.
// With both speeds at 0 the dodge always fails.
func DodgeChance(defenderSpeed, attackerSpeed int) float64 {
	total := defenderSpeed + attackerSpeed
	if total <= 0 {
		return 0
	}
	return float64(defenderSpeed) / float64(total)
}
