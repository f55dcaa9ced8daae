package conversation

import "strings"

// プレースホルダ
const (
	noDescription    = "No description provided."
	genericCandidate = "the candidate"
	genericRole      = "General Role"
)

// RenderPrompt はコンテキストから面接官のシステムプロンプトを生成する。
// 純粋関数であり、同じContextに対して常にバイト単位で同一の文字列を返す。
func RenderPrompt(c *Context) string {
	role := c.Interview.Role
	if role == "" {
		role = genericRole
	}
	jobDescription := noDescription
	if jd := c.Interview.JobDescription; jd != nil && *jd != "" {
		jobDescription = *jd
	}
	name := genericCandidate
	if n := c.Resume.Name; n != nil && *n != "" {
		name = *n
	}

	var b strings.Builder
	b.WriteString("You are an expert AI Interviewer conducting a " + role + " interview.\n")
	b.WriteString("\nSESSION CONTEXT:\n")
	b.WriteString("- Role: " + role + "\n")
	b.WriteString("- Round Type: " + strings.Join(c.Interview.Rounds, ", ") + "\n")
	b.WriteString("- Job Description: " + jobDescription + "\n")
	b.WriteString("\nCANDIDATE PROFILE:\n")
	b.WriteString("- Name: " + name + "\n")
	b.WriteString("- Key Skills: " + strings.Join(c.Resume.Skills, ", ") + "\n")
	b.WriteString("- Experience: " + strings.Join(c.Resume.Experience, ", ") + "\n")
	b.WriteString("- Projects: " + strings.Join(c.Resume.Projects, ", ") + "\n")
	b.WriteString("\nYOUR GOAL:\n")
	b.WriteString("Conduct a professional, realistic interview. Start by welcoming the candidate.\n")
	b.WriteString("Ask relevant questions based on their resume skills and the job description.\n")
	b.WriteString("If the candidate mentions a project, ask deep technical questions about it.\n")
	b.WriteString("Keep your responses concise (under 2-3 sentences) to keep the conversation flowing.\n")
	b.WriteString("Do not be repetitive.")
	return b.String()
}
