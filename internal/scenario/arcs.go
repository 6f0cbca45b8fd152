package scenario

// BuiltIn returns the shipped scenario scripts.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"rush-hour": {
			Name:        "Rush Hour",
			Description: "Evening peak traffic drives sustained call volume while stop-and-go wear grinds on the ambulances.",
			Phases: []Phase{
				{
					Name:        "setup",
					Description: "Fleet settles into station posture before the peak.",
					Triggers:    []Trigger{{Event: EventTimeElapsed, Value: 30, Next: "escalation"}},
				},
				{
					Name:        "escalation",
					Description: "Calls pick up as commuter traffic builds.",
					Emergencies: []EmergencySpec{
						{Type: "accident", SeverityLevel: 3, Count: 2},
						{Type: "medical", SeverityLevel: 2},
					},
					Triggers: []Trigger{{Event: EventEmergenciesResolved, Value: 2, Next: "climax"}},
				},
				{
					Name:        "climax",
					Description: "A pileup on the expressway lands on top of the routine load.",
					Injections: []Injection{
						{Vehicle: "amb-*", Scenario: "tire_pressure_low"},
					},
					Emergencies: []EmergencySpec{
						{Type: "accident", SeverityLevel: 4},
						{Type: "medical", SeverityLevel: 3, Count: 2},
					},
					Triggers: []Trigger{{Event: EventEmergenciesResolved, Value: 3, Next: "resolution"}},
				},
				{
					Name:        "resolution",
					Description: "Traffic thins out and units cycle back to quarters.",
				},
			},
		},
		"station-blackout": {
			Name:        "Station Blackout",
			Description: "A grid failure takes out station power; vehicles run on batteries until the transformer fire is out.",
			Phases: []Phase{
				{
					Name:        "setup",
					Description: "Normal operations before the grid drops.",
					Triggers:    []Trigger{{Event: EventTimeElapsed, Value: 20, Next: "escalation"}},
				},
				{
					Name:        "escalation",
					Description: "Station power fails; charging stops and batteries sag.",
					Injections: []Injection{
						{Vehicle: "amb-*", Scenario: "battery_degradation"},
						{Vehicle: "eng-*", Scenario: "alternator_failure"},
					},
					Emergencies: []EmergencySpec{
						{Type: "medical", SeverityLevel: 2},
					},
					Triggers: []Trigger{{Event: EventTimeElapsed, Value: 90, Next: "climax"}},
				},
				{
					Name:        "climax",
					Description: "The substation transformer catches fire.",
					Injections: []Injection{
						{Vehicle: "pol-*", Scenario: "voltage_spike"},
					},
					Emergencies: []EmergencySpec{
						{Type: "fire", SeverityLevel: 4},
					},
					Triggers: []Trigger{{Event: EventEmergenciesResolved, Value: 1, Next: "resolution"}},
				},
				{
					Name:        "resolution",
					Description: "Grid power returns and chargers come back online.",
				},
			},
		},
		"mass-casualty": {
			Name:        "Mass Casualty",
			Description: "A multi-vehicle incident with hazmat involvement pulls most of the fleet to one scene.",
			Phases: []Phase{
				{
					Name:        "setup",
					Description: "Quiet shift until the first calls land.",
					Triggers:    []Trigger{{Event: EventTimeElapsed, Value: 15, Next: "escalation"}},
				},
				{
					Name:        "escalation",
					Description: "A tanker rollover on the interchange, casualties reported.",
					Emergencies: []EmergencySpec{
						{Type: "accident", SeverityLevel: 5},
						{Type: "medical", SeverityLevel: 4, Count: 2},
					},
					Triggers: []Trigger{{Event: EventEmergenciesResolved, Value: 2, Next: "climax"}},
				},
				{
					Name:        "climax",
					Description: "The tanker's load ignites; pumps run at capacity.",
					Injections: []Injection{
						{Vehicle: "eng-*", Scenario: "water_pump_failure"},
					},
					Emergencies: []EmergencySpec{
						{Type: "hazmat", SeverityLevel: 4},
						{Type: "rescue", SeverityLevel: 4},
					},
					Triggers: []Trigger{{Event: EventEmergenciesResolved, Value: 2, Next: "resolution"}},
				},
				{
					Name:        "resolution",
					Description: "Scene command releases units back to quarters.",
				},
			},
		},
	}
}
