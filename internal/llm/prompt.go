package llm

import (
	"strings"

	"github.com/dgallion1/prdbuilder/internal/parser"
)

const SystemPrompt = `You are an AI assistant specialized in creating structured Product Requirements Documents (PRDs) for internal web apps and tools.

Your role is to take a product description and generate a comprehensive, well-organized PRD that follows industry best practices.

When generating PRDs:
1. Analyze the product description thoroughly, considering:
   - Main purpose of the tool or app
   - Target users or audience
   - Key features or functionalities
   - Technical requirements or constraints
   - Potential challenges or unique aspects

2. Structure the PRD with these sections:
   - Executive Summary
   - Product Overview
   - Objectives and Goals
   - Target Audience
   - Scope (In Scope / Out of Scope / Future Considerations)
   - Functional Requirements
   - Non-Functional Requirements
   - User Interface Requirements
   - Technical Requirements (provide multiple options with a recommendation)
   - Success Metrics
   - Timeline and Milestones
   - Risks and Mitigation
   - Dependencies and Assumptions
   - Future Enhancements
   - Appendix

3. Requirements must be:
   - Clear and unambiguous
   - Testable and verifiable
   - Consistent with each other
   - Feasible within product constraints
   - Numbered for easy reference
   - Include measurable criteria (performance metrics, capacity limits, etc.)

4. Use markdown formatting with headers (#, ##, ###), "-" bullet points, numbered lists, **bold** and *italic* emphasis and ` + "`inline code`" + `. Do not use tables, block quotes or fenced code blocks.

5. If crucial information is missing, note it in an "Additional Information Needed" section.

6. Make reasonable assumptions based on context and best practices when details aren't explicit.

7. Ensure language is clear and concise, avoiding jargon unless necessary for technical specs.

8. Generate realistic, specific content - not generic placeholders.

The quality of your PRD is crucial for management approval. Be accurate, thorough, and concise.`

const closingInstruction = "Please generate a comprehensive Product Requirements Document following the structure and guidelines in your instructions. Ensure all sections are well-detailed with specific, actionable requirements."

// BuildPRDPrompt assembles the user prompt from labeled sections. Optional
// sections are omitted when empty.
func BuildPRDPrompt(form FormData, files []parser.Attachment) string {
	var sb strings.Builder
	sb.WriteString("# Product Requirements Document Request\n\n")

	section := func(title, body string) {
		sb.WriteString("## ")
		sb.WriteString(title)
		sb.WriteString("\n")
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}

	section("Product Name", form.ProductName)
	section("Product Description", form.Description)
	if form.Goals != "" {
		section("Goals and Objectives", form.Goals)
	}
	if form.TargetAudience != "" {
		section("Target Audience", form.TargetAudience)
	}
	if len(form.Features) > 0 {
		lines := make([]string, len(form.Features))
		for i, f := range form.Features {
			lines[i] = "- " + f
		}
		section("Key Features", strings.Join(lines, "\n"))
	}

	if len(files) > 0 {
		sb.WriteString("## Additional Context from Uploaded Files\n\n")
		for _, f := range files {
			sb.WriteString("### ")
			sb.WriteString(f.Name)
			sb.WriteString("\n")
			if f.IsImage() {
				sb.WriteString("[Image file attached for visual context]\n\n")
				continue
			}
			sb.WriteString(f.Content)
			sb.WriteString("\n\n---\n\n")
		}
	}

	sb.WriteString(closingInstruction)
	return sb.String()
}
