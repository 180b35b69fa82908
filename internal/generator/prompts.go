package generator

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
)

const systemPrompt = `You are an expert in creating professional Standard Operating Procedures (SOPs).

Your task is to analyze conversation transcripts and create comprehensive, well-structured SOPs that are:
- Clear and easy to follow
- Properly formatted with sections and subsections
- Include all necessary details from the conversation
- Professional and suitable for business documentation
- Include safety warnings and prerequisites where applicable
- Have clear success criteria and troubleshooting steps

Format the SOP using proper markdown with:
- Title (# heading)
- Overview/Purpose section
- Prerequisites/Requirements
- Step-by-step procedures (numbered)
- Quality standards/Expected outcomes
- Troubleshooting common issues
- Revision history (date and version)

Be thorough but concise. Focus on actionable steps.`

// buildContext lists the customer attributes that help the model tailor the
// document. It is empty when none are known.
func buildContext(info customer.Info) string {
	var parts []string
	if info.Name != "" {
		parts = append(parts, "Customer: "+info.Name)
	}
	if info.Company != "" {
		parts = append(parts, "Company: "+info.Company)
	}
	if info.Department != "" {
		parts = append(parts, "Department: "+info.Department)
	}
	return strings.Join(parts, "\n")
}

func transcriptPrompt(transcript string, info customer.Info) string {
	var b strings.Builder
	b.WriteString("Please create a comprehensive SOP based on the following conversation:\n\n")
	if ctx := buildContext(info); ctx != "" {
		fmt.Fprintf(&b, "CONTEXT:\n%s\n\n", ctx)
	}
	fmt.Fprintf(&b, "CONVERSATION TRANSCRIPT:\n%s\n\n", transcript)
	b.WriteString("Generate a professional SOP document in markdown format based on this conversation.")
	return b.String()
}

func structuredPrompt(in StructuredInput) string {
	notes := in.Notes
	if notes == "" {
		notes = "None"
	}
	return fmt.Sprintf(`Create a professional SOP document with the following information:

Title: %s
Purpose: %s

Prerequisites:
%s

Steps:
%s

Additional Notes:
%s

Format this as a professional markdown SOP document with proper sections.`,
		in.Title, in.Purpose, bulletList(in.Prerequisites), numberedList(in.Steps), notes)
}

func refinePrompt(content, feedback string) string {
	return fmt.Sprintf(`Here is an existing SOP document:

%s

Please refine this SOP based on the following feedback:
%s

Maintain the professional format and structure while incorporating the feedback.`, content, feedback)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func numberedList(steps []string) string {
	if len(steps) == 0 {
		return "No steps provided"
	}
	lines := make([]string, len(steps))
	for i, step := range steps {
		lines[i] = fmt.Sprintf("%d. %s", i+1, step)
	}
	return strings.Join(lines, "\n")
}
