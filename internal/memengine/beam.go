package memengine

import (
	"context"
	"log/slog"
	"math"

	"github.com/vk/madxbind/internal/native"
)

func setNumber(cmd *native.Command, name string, v float64) {
	if p := findParam(cmd, name); p != nil {
		p.DoubleValue = v
		return
	}
	setParam(cmd, &native.Parameter{Name: cstr(name), Type: native.ParamDouble, DoubleValue: v})
}

// beam defines a beam and derives the dependent energy quantities from
// whichever of energy, pc or gamma was given.
func (e *Engine) beam(ctx context.Context, args []arg) {
	cmd := defaultCommand("beam", commandDefs["beam"])
	e.applyArgs(ctx, cmd, commandDefs["beam"], args, false)

	particle := stringParam(cmd, "particle")
	if mc, ok := particles[particle]; ok {
		if !isSet(args, "mass") {
			setNumber(cmd, "mass", mc[0])
		}
		if !isSet(args, "charge") {
			setNumber(cmd, "charge", mc[1])
		}
	} else if !isSet(args, "mass") {
		e.warn(ctx, "unknown particle %q without mass, using electron mass", particle)
	}

	mass := numberParam(cmd, "mass")
	if mass <= 0 {
		e.warn(ctx, "beam mass must be positive, got %g", mass)
		return
	}
	energy := numberParam(cmd, "energy")
	switch {
	case isSet(args, "pc"):
		pc := numberParam(cmd, "pc")
		energy = math.Sqrt(pc*pc + mass*mass)
	case isSet(args, "gamma"):
		energy = numberParam(cmd, "gamma") * mass
	}
	if energy < mass {
		e.warn(ctx, "beam energy %g is below the rest mass %g, using the rest mass", energy, mass)
		energy = mass
	}

	gamma := energy / mass
	pc := math.Sqrt(energy*energy - mass*mass)
	charge := math.Abs(numberParam(cmd, "charge"))
	setNumber(cmd, "energy", energy)
	setNumber(cmd, "pc", pc)
	setNumber(cmd, "gamma", gamma)
	setNumber(cmd, "beta", pc/energy)
	if charge > 0 {
		setNumber(cmd, "brho", pc*1e9/(charge*clight))
	}

	if name := stringParam(cmd, "sequence"); name != "" {
		e.beams[name] = cmd
		if seq := e.sequence(name); seq != nil {
			seq.Beam = cmd
		}
	} else {
		e.defaultBeam = cmd
		if cur := e.current; cur != nil {
			if _, own := e.beams[gostr(cur.Name)]; !own {
				cur.Beam = cmd
			}
		}
	}
	e.storeCommand(cmd)
	e.info(ctx, "Beam defined.", slog.String("particle", particle), slog.Float64("energy", energy))
}
