/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package breakdown

import "fmt"

const systemPrompt = "You are a JSON-output specialist."

// taskPrompt asks for a pure JSON array of tasks sized to the days remaining.
func taskPrompt(goal, currentLevel, targetLevel, deadline string, daysLeft, totalTasks int) string {
	return fmt.Sprintf(
		"You are a helpful assistant that breaks down high-level goals into actionable tasks. "+
			"The user's current proficiency is %q and they wish to reach %q. "+
			"They have %d day(s) until the deadline. Generate exactly %d tasks, "+
			"ordered so the plan logically moves from %s to %s. "+
			"For each task, estimate how many hours it will take (decimal OK).\n\n"+
			"Respond with a pure JSON array of objects, each containing:\n"+
			"  id: integer step number,\n"+
			"  task: string step description,\n"+
			"  duration_hours: number hours.\n\n"+
			"Goal: %s\nDeadline: %s\n\n"+
			"Respond ONLY with valid JSON, no extra text or markdown.",
		currentLevel, targetLevel, daysLeft, totalTasks,
		currentLevel, targetLevel, goal, deadline,
	)
}

// complexityPrompt asks for a single 1-10 difficulty rating.
func complexityPrompt(goal, level, deadline string) string {
	return fmt.Sprintf(
		"Rate the difficulty of achieving the following goal for someone at %q level "+
			"by the deadline %s on a scale from 1 (trivial) to 10 (extremely hard).\n\n"+
			"Goal: %s\n\n"+
			"Respond with ONLY the integer, nothing else.",
		level, deadline, goal,
	)
}
