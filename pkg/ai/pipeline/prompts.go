package pipeline

import (
	"fmt"

	"research-flowstream/pkg/ai/generation"
	"research-flowstream/pkg/sse"
)

func researcherPrompt(topic string) generation.Prompt {
	return generation.Prompt{
		Stage:       sse.StageResearcher,
		System:      "You are a concise researcher.",
		User:        fmt.Sprintf("Provide compact, factual bullet points about '%s'. Max 8 bullets. Avoid filler text.", topic),
		Temperature: 0.5,
	}
}

func researcherFallback(topic string) generation.Fallback {
	return generation.Fallback{
		Disabled: fmt.Sprintf("- What is '%s'?\n- 3–5 key facts\n- Common use cases\n- Simple examples\n", topic),
		Error:    "- Background\n- Key points\n- Examples",
	}
}

func analystPrompt(researcherNotes string) generation.Prompt {
	return generation.Prompt{
		Stage:       sse.StageAnalyst,
		System:      "You extract insights cleanly.",
		User:        fmt.Sprintf("From these notes, produce exactly 3 insights and 2 implications:\n%s", researcherNotes),
		Temperature: 0.5,
	}
}

func analystFallback() generation.Fallback {
	return generation.Fallback{
		Disabled: "- 3 key insights\n- 2 implications\n- 1 trade-off\n",
		Error:    "- Insight 1\n- Insight 2\n- Insight 3\n- Implication A\n- Implication B",
	}
}

func writerPrompt(topic, researcherNotes, analystNotes string) generation.Prompt {
	return generation.Prompt{
		Stage:  sse.StageWriter,
		System: "You are a clear, helpful technical writer.",
		User: "Write a clear, beginner-friendly report with markdown headings:\n" +
			"Sections: Introduction, Key Concepts, Insights, Practical Tips, Conclusion.\n" +
			"Use concise language and bullets where helpful.\n\n" +
			fmt.Sprintf("Topic: %s\n\n", topic) +
			fmt.Sprintf("Researcher Notes:\n%s\n\n", researcherNotes) +
			fmt.Sprintf("Analyst Notes:\n%s\n", analystNotes),
		Temperature: 0.6,
	}
}

// localDocument is replayed fragment by fragment when generation is disabled.
func localDocument(topic string) []string {
	return []string{
		fmt.Sprintf("## %s\n\n", topic),
		"### Introduction\n",
		"This response is streaming locally to simulate real-time typing.\n\n",
		"### Key Concepts\n",
		"- Concept A\n- Concept B\n\n",
		"### Insights\n",
		"- Insight 1\n- Insight 2\n\n",
		"### Practical Tips\n",
		"- Tip 1\n- Tip 2\n\n",
		"### Conclusion\n",
		"Short summary.\n",
	}
}
