// Command polyfit fits each configured train's calibration points and prints what the guide will use.
package main

import (
	"flag"
	"log"

	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/config"
	"nyiyui.ca/hato/shingo/tal/guide"
	"nyiyui.ca/hato/shingo/tal/plan"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	c, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load: %s", err)
	}
	for _, t := range c.Trains {
		r := t.Relation()
		log.Printf("%s (%s): %d points, coeffs: %#v", t.ID, t.Name, len(t.Calibration), r.Coeffs)
		for _, p := range t.Calibration {
			log.Printf("  step %3d: measured %7d µm/s, fitted %7d µm/s", p.Step, p.Velocity, r.Velocity(shingo.Speed(p.Step)))
		}
		cruise := shingo.Speed(t.Cruise)
		if cruise <= 0 {
			cruise = shingo.Drive(80)
		}
		decel := t.Deceleration
		if decel <= 0 {
			decel = guide.DefaultDeceleration
		}
		v := r.Velocity(cruise)
		log.Printf("  cruise %s: %d µm/s, braking %s", cruise, v, plan.BrakingTime(v, decel))
	}
}
