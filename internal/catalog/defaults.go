package catalog

func standardOutcomes() []Outcome {
	return []Outcome{
		{Label: OutcomeWin, Score: 1},
		{Label: OutcomeLose, Score: 0},
		{Label: OutcomeViolation, Score: -1},
		{Label: OutcomeTimeout, Score: 0},
	}
}

func withOutcomes(extra ...Outcome) []Outcome {
	return append(standardOutcomes(), extra...)
}

func defaultMissions() []Mission {
	return []Mission{
		{
			ID:          "HEART_1",
			Title:       "THE LAST STAND",
			Location:    "Zone A - Hall",
			Description: "Decide: All 4 play with heavy restrictions, OR 2 members are removed so the others play freely.",
			Difficulty:  "★☆☆☆☆",
		},
		{
			ID:          "HEART_2",
			Title:       "THE BURDEN CARRIER",
			Location:    "Zone A - Room 102",
			Description: "Choose ONE member to carry all penalties. If they fail 3 times, they are eliminated.",
			Difficulty:  "★★☆☆☆",
		},
		{
			ID:          "HEART_3",
			Title:       "THE SILENT VOTE",
			Location:    "Zone B - Room 201",
			Description: "Vote to eliminate one member. No talking allowed. Ties result in handicaps.",
			Difficulty:  "★★★☆☆",
		},
		{
			ID:          "HEART_4",
			Title:       "TRUST THE OTHERS",
			Location:    "Zone B - Corridor",
			Description: "Head-to-head with another team. Both trust: +3 tokens. Betrayal: tokens for one, penalty for the other. Both betray: -3 tokens.",
			Difficulty:  "★★★★☆",
			Outcomes: withOutcomes(
				Outcome{Label: "BOTH_TRUST", Tokens: 3, Score: 1},
				Outcome{Label: "BETRAYER", Tokens: 3, Score: 1},
				Outcome{Label: "BETRAYED", Tokens: -3},
				Outcome{Label: "BOTH_BETRAY", Tokens: -3},
			),
		},
		{
			ID:          "HEART_5",
			Title:       "TRUST YOUR ONES",
			Location:    "Zone C - Lobby",
			Description: "Select a member. They play SOLO for a wager or TEAM for standard points. If solo loses, the team gets -1.",
			Difficulty:  "★★★★★",
			Outcomes: withOutcomes(
				Outcome{Label: "SOLO_WIN", Score: 2, IsWager: true, Win: true},
				Outcome{Label: "SOLO_LOSE", Score: -1, IsWager: true, Win: false},
			),
		},
		{
			ID:          "HEART_6",
			Title:       "TRADE A LIFE",
			Location:    "The Penthouse",
			Description: "A team must give up one member (or their token) to save the rest. The traded member is banned for 2 phases.",
			Difficulty:  "☠☠☠☠☠",
			Outcomes: withOutcomes(
				Outcome{Label: "TRADE_TOKEN", Tokens: -1, Score: 1},
			),
		},
		{
			ID:          "SPADE_1",
			Title:       "CALCULATED PATH",
			Location:    "Zone D - Grid Room",
			Description: "Guide a blindfolded member through a logic-locked path. Wrong move resets progress.",
			Difficulty:  "★☆☆☆☆",
		},
		{
			ID:          "SPADE_2",
			Title:       "THE 3 SWITCHES",
			Location:    "Zone D - Control Room",
			Description: "3 switches, 1 door. Only one member touches switches. Others can ONLY say 'YES' or 'NO'.",
			Difficulty:  "★★☆☆☆",
		},
		{
			ID:          "SPADE_3",
			Title:       "BINARY BRIDGE",
			Location:    "Zone E - Walkway",
			Description: "Cross the bridge by solving binary sequences. One wrong step and the floor drops.",
			Difficulty:  "★★★☆☆",
		},
		{
			ID:          "SPADE_4",
			Title:       "PATTERN MEMORY",
			Location:    "Zone E - Lab",
			Description: "Memorize the sequence of flashing lights while loud noise plays. Replicate it perfectly.",
			Difficulty:  "★★★★☆",
		},
		{
			ID:          "SPADE_5",
			Title:       "WEIGHT BALANCE",
			Location:    "Zone F - Scales",
			Description: "Use your own body weight to balance the scales against a mystery object.",
			Difficulty:  "★★★★★",
		},
		{
			ID:          "SPADE_6",
			Title:       "MASTERMIND",
			Location:    "The Arena",
			Description: "Crack the manager's 4-digit code using logic clues before the room fills with smoke.",
			Difficulty:  "☠☠☠☠☠",
			Outcomes: withOutcomes(
				Outcome{Label: "CODE_CRACKED", Tokens: 5, Score: 2},
			),
		},
	}
}
