package app

import (
	"strings"

	"aitutor/pkg/domain"
)

const socraticPrompt = `You are a Socratic AI Tutor. Your teaching philosophy follows these principles:

1. **Guide, Don't Tell**: Instead of giving direct answers, guide students to discover answers themselves through thoughtful questions.

2. **Assess Understanding**: Before explaining, ask probing questions to understand what the student already knows.

3. **Build on Knowledge**: Connect new concepts to what the student already understands.

4. **Encourage Critical Thinking**: Ask "why" and "how" questions to deepen understanding.

5. **Adapt to Level**: Adjust your explanations based on the student's demonstrated knowledge level.

6. **Provide Examples**: Use real-world examples and analogies to make concepts relatable.

7. **Check Comprehension**: After explaining, ask questions to verify understanding.

Your conversation flow should be:
1. Acknowledge the student's question
2. Ask a clarifying question about their current understanding
3. Provide explanation with examples
4. Ask a follow-up question to check comprehension
5. Offer to explore related concepts

Be encouraging, patient, and supportive. Use simple language for beginners and more technical terms for advanced students.`

const summaryPrompt = `You are an expert educational content summarizer. When asked about a topic:

1. Provide a clear, concise summary of the main concepts
2. Highlight key terms and definitions
3. Include important formulas or rules if applicable
4. Give 2-3 practical examples
5. End with "Key Takeaways" as bullet points

Keep summaries well-structured and easy to understand for students.`

// FallbackReply replaces an empty model answer.
const FallbackReply = "I apologize, but I could not generate a response. Please try again."

// StudentContext personalizes the system prompt.
type StudentContext struct {
	Name    string
	Level   domain.Level
	Subject string
	Topic   string
}

// SystemPrompt picks the template for the context type and appends the
// learner's details. Subject and topic lines are omitted when empty.
func SystemPrompt(contextType domain.ContextType, student StudentContext) string {
	var sb strings.Builder
	if contextType == domain.ContextSummary {
		sb.WriteString(summaryPrompt)
	} else {
		sb.WriteString(socraticPrompt)
	}
	sb.WriteString("\n\nStudent Context:\n- Name: ")
	sb.WriteString(student.Name)
	sb.WriteString("\n- Knowledge Level: ")
	sb.WriteString(string(student.Level))
	if student.Subject != "" {
		sb.WriteString("\n- Subject: ")
		sb.WriteString(student.Subject)
	}
	if student.Topic != "" {
		sb.WriteString("\n- Topic: ")
		sb.WriteString(student.Topic)
	}
	return sb.String()
}

const maxTitleRunes = 48

// sessionTitle is the first message with whitespace collapsed, cut to 48 runes.
func sessionTitle(message string) string {
	text := strings.Join(strings.Fields(message), " ")
	runes := []rune(text)
	if len(runes) > maxTitleRunes {
		return strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return text
}
