/**
 * Prompt builders for the tutoring LLM calls
 *
 * Each builder returns the full message list for one call: system
 * instructions with the problem context, the whiteboard image, and where the
 * call is conversational, the board's prior message history.
 */

package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
)

// Models used per call
const (
	AnalysisModel   = "gpt-4o-2024-11-20"
	CorrectionModel = "gpt-4o"
	ChatModel       = "gpt-4o"
)

const fence = "```"

// Context is the problem a call is about
type Context struct {
	Question     int
	UserQuestion string
	Catalog      *Catalog // System when nil
}

func (c Context) problem() (string, string, error) {
	cat := c.Catalog
	if cat == nil {
		cat = System
	}
	q, ok := cat.Question(c.Question)
	if !ok {
		return "", "", fmt.Errorf("unknown question %d", c.Question)
	}
	s, _ := cat.Solution(c.Question)
	return q, s, nil
}

func (c Context) userQuestionOr(fallback string) string {
	if c.UserQuestion == "" {
		return fallback
	}
	return c.UserQuestion
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func system(texts ...string) llm.Message {
	parts := make([]llm.Part, len(texts))
	for i, t := range texts {
		parts[i] = llm.TextPart(t)
	}
	return llm.Message{Role: llm.RoleSystem, Content: parts}
}

func imageMessage(imageB64 string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: []llm.Part{llm.ImagePart(llm.JPEGDataURL(imageB64))}}
}

// Analyze builds the student-work analysis prompt
func Analyze(ctx Context, equations []ocr.Equation, imageB64 string, history []llm.Message) ([]llm.Message, error) {
	question, solution, err := ctx.problem()
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf(`**Role and Task Definition**
- You are an expert math tutor specializing in calculus.
- Your objective is to give step-by-step guidance to help a student solve a calculus problem.
- You have access to:
  - A whiteboard image containing the student's handwritten work and annotations.
  - A JSON object that represents the extracted words, equations, and terms from the whiteboard.

**Context and Background**
- **Calculus Problem Statement:** The problem is provided as %s.
- **Solution Provided:** The full solution is given as %s.
- **Student Question:** The student has asked: %s.
- **Whiteboard Image:** Displays the problem statement, student's handwritten work, and annotations.
- **Extracted Data:** A structured JSON object containing words, equations, and individual terms, including their bounding box coordinates.
- **Interpreting Annotations on the Whiteboard Image (Table 1):**
| Annotation                     | Meaning                                                       |
|--------------------------------|---------------------------------------------------------------|
| Circle                         | The student is focusing on this part while asking a question. |
| Curves                         | Indicates space management.                                   |
| Rectangle                      | Visualizing the problem or boxing the final answer.           |
| Mathematical Expressions       | Intermediate calculations for solving the problem.            |
| Crossed out / straight lines   | Simplifications, key details, or eliminations.                |
| Scribbled-out lines            | Indicates a correction or mistake.                            |
| Text                           | Off-task notes or next-step transitions.                      |
| Arrow                          | Shows reasoning flow, substitution, or next-step transitions. |

**Instructions for Two Types of Feedback**

1. **Direct Response to the Student's Question:**
  - Provide a concise answer (2-3 sentences) that addresses the student's question.
  - If no question is asked, provide general feedback on the whiteboard work.
  - Connect your response to the handwritten work on the whiteboard, explaining relevant parts without revealing the complete solution.
  - Include formulas when asked.
  - Use LaTeX formatting for any mathematical expressions.

2. **Annotations on the Handwritten Solution:**
  - Analyze the provided JSON object (denoted as %s) which contains words, equations, and their respective terms.
  - Annotate only the incorrect or unclear parts:
    - For each annotation, refer to the corresponding item's id (for words or equations) or termId (for specific parts within an equation).
    - Use **red** for corrections or errors, and **blue** for general guidance.
    - Each item and term may have at most one annotation.
  - Provide a one-sentence explanation for each annotation that answers the student's question.
  - If no question is asked, provide general feedback on the whiteboard work.
  - Include formulas when asked.
  - Use LaTeX formatting for any mathematical expressions.

**Desired Output Format**
Return your answer in the following JSON format:

`, question, solution, ctx.UserQuestion, mustJSON(equations)) +
		fence + `json
{
  "ovFb": "string",
  "annos": [
    {
      "eqsToAnno": [
        {"eqId": "string", "annoExp": "explanation", "annoColor": "blue"}
      ],
      "termsToAnno": [
        {"termId": "string", "annoExp": "explanation", "annoColor": "blue"}
      ]
    }
  ]
}
` + fence + `

**Additional Guidelines:**
- Be clear and specific in your instructions and explanations.
- Provide context by linking your response and annotations directly to both the student's question and the handwritten work.
- Keep your feedback concise and focused.
- If no solution is provided in any area, annotate only the key English words from the problem that could help guide the student.

**Example for Annotation:**
- If the student highlights an error in an equation term (e.g., a miscalculation in the derivative), annotate the term's ID with a brief explanation such as "Review the derivative rule for this term" using a red color if it's incorrect.`

	messages := []llm.Message{system(text), imageMessage(imageB64)}
	return append(messages, history...), nil
}

// Verify builds the review prompt for a student-work analysis
func Verify(ctx Context, equations []ocr.Equation, imageB64 string, annotations interface{}) ([]llm.Message, error) {
	question, solution, err := ctx.problem()
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf(`**Role and Task Definition**
- You are an expert math tutor specializing in calculus who is verifying the quality of annotations.
- Your objective is to review and improve the feedback and annotations provided to a student.
- You have access to:
  - A whiteboard image containing the student's handwritten work and annotations.
  - A JSON object that represents the extracted words, equations, and terms from the whiteboard.
  - The original annotations that were generated.

**Context and Background**
- **Calculus Problem Statement:** The problem is provided as %s.
- **Solution Provided:** The full solution is given as %s.
- **Student Question:** The student has asked: %s.
- **Extracted Data:** A structured JSON object containing words, equations, and individual terms: %s
- **Original Annotations:** The annotations to verify: %s

**Verification Task**
1. **Review the overall feedback (ovFb)** for:
   - Accuracy of mathematical content
   - Relevance to student's question
   - Clarity and conciseness
   - Proper LaTeX formatting

2. **Review each annotation** (both eqsToAnno and termsToAnno) for:
   - Mathematical correctness
   - Appropriateness of color selection ('blue' for guidance, 'red' for corrections)
   - Clarity of explanation
   - Relevance to solving the problem

3. **Create improved annotations** that maintain the same structure but improve:
   - Mathematical accuracy
   - Clarity of explanations
   - Appropriate use of color codes
   - Relevance to the student's question

**Output Format**
Return your answer in the EXACT SAME JSON format as the original.

**Important Guidelines:**
- Maintain the same structure as the original annotations.
- Keep the same sets of eqId and termId values - do not add or remove annotations.
- Improve explanations to be more accurate, clear, and helpful.
- Correct any color coding issues ('blue' for guidance, 'red' for corrections).
- Ensure all mathematical notation uses proper LaTeX formatting.
- Make sure feedback is directly relevant to the student's question.
- Do not reveal the complete solution - focus on providing guidance.`,
		question, solution, ctx.userQuestionOr("No question provided"), mustJSON(equations), mustJSON(annotations))

	return []llm.Message{system(text), imageMessage(imageB64)}, nil
}

// AnalyzeQuestion builds the prompt that annotates key terms of the printed problem
func AnalyzeQuestion(ctx Context, equations []ocr.Equation, imageB64 string, history []llm.Message) ([]llm.Message, error) {
	question, solution, err := ctx.problem()
	if err != nil {
		return nil, err
	}

	role := `### **Role: Expert Math Tutor**
- You are analyzing a calculus problem.
- You have access to **the math problem** in string format, a **whiteboard image** containing the math problem, and a **JSON object containing extracted terms (words) from the problem**.
- Your goal is to **provide clear guidance and targeted annotations** to help the student solve the problem efficiently.`

	problem := fmt.Sprintf(`### **Math Problem Context:**
**Problem Statement:** %s
**Full Solution (for context):** %s
**User's Question (if provided):** %s
**JSON Object of Problem Statement and Extracted Terms:** %s`,
		question, solution, ctx.userQuestionOr("No question given"), mustJSON(equations))

	task := fmt.Sprintf(`**Task: Provide Two Types of Feedback**

**1. Guided Feedback (ovFb Field)**
- If the student has asked a question (**"%s"**), answer it concisely (2-3 sentences max).
- Include formulas when asked.
- If no question is provided, **give the first step to start solving the problem**.
- Do **not** give the full solution, just **the best starting approach**.
- Use **LaTeX for any mathematical notation**.
- Include this response in the **"ovFb"** field of the JSON output.

**2. Annotate Key Terms Relevant to the Student's Question (termsToAnno Field)**
- If a **question is provided**, prioritize annotating **key terms that directly help answer it**.
- If **no question is given**, annotate **key terms essential to starting the problem**.
- You have access to the **full text and bounding box of the problem**, as well as an **array of all words (terms)** with their positions in the problem.
- For each key term, include:
  - The **term ID** (must match the provided ID).
  - A **brief explanation (1 sentence)** on how to use that term to start solving the problem.
  - **Formulas when necessary (in LaTeX)** to reinforce the concept.

**Example Annotations:**
**If the problem asks to find the derivative of \( x^2 \)**:
- **Term:** "derivative" → *"This means you need to differentiate the given function. Use the power rule: \( \frac{d}{dx} x^n = n x^{n-1} \)."*
- **Term:** "x²" → *"Applying the power rule: \( \frac{d}{dx} x^2 = 2x \)."*

**If the question asks about the chain rule:**
- **Term:** "chain rule" → *"Use the chain rule: \( \frac{d}{dx} f(g(x)) = f'(g(x)) \cdot g'(x) \)."*

**Expected JSON Output Format:**
`, ctx.UserQuestion) + fence + `json
{
  "ovFb": "string",
  "termsToAnno": [
    {"termId": "string", "termValue": "string", "termExp": "string"}
  ]
}
` + fence

	notes := `**Additional Notes:**
- Ignore **non-relevant annotations** (e.g., scribbles, crossed-out text, arrows).
- **Do not modify term IDs**, they must match the provided input.
- Be **precise, relevant, and focused on helping the student solve the problem**.`

	messages := []llm.Message{system(role, problem, task, notes), imageMessage(imageB64)}
	return append(messages, history...), nil
}

// VerifyQuestion builds the review prompt for question-term annotations.
// The image is optional.
func VerifyQuestion(ctx Context, equations []ocr.Equation, imageB64 string, annotations interface{}) ([]llm.Message, error) {
	question, solution, err := ctx.problem()
	if err != nil {
		return nil, err
	}

	role := `### **Role: Math Annotation Verifier and Improver**

You are an expert system designed to verify and improve the quality and accuracy of annotations for calculus problems. Your task is to analyze the given problem, the current annotations, and produce improved annotations in the same format.`

	problem := fmt.Sprintf(`### **Context:**
**Problem Statement:** %s
**Expected Solution:** %s
**Student's Question (if provided):** %s
**Problem Equation Data:** %s
**Current Annotations:** %s`,
		question, solution, ctx.userQuestionOr("No question given"), mustJSON(equations), mustJSON(annotations))

	task := `### **Task:**

1. **Evaluate the current annotations** for accuracy, relevance, and helpfulness
2. For each annotation in Current Annotations, **ensure the termValue relate to termExp**. If not, create another annotation that relates the termValue to termExp and remove the original annotation.
3. **Create improved annotations** in the exact same format
4. **Do not** annotate article words (e.g., "the", "a", "an", "is", "if", etc.)
5. **Ensure all mathematical content** is correctly formatted using LaTeX

### **Required Output Format:**
Return a JSON object with the EXACT SAME structure as the input annotations.`

	guidelines := `### **Improvement Guidelines:**

- **Fix mathematical errors** in the original annotations
- **Enhance clarity** of explanations while keeping them concise
- **Include proper LaTeX notation** for all mathematical formulas
- **Only annotate terms** that exist in the original data (use the same termIds)
- **Address the student's question directly** if one was provided
- **Provide clearer first steps** if no question was given

Remember that your improved annotations must follow the exact structure of the original annotations, but with better content.`

	messages := []llm.Message{system(role, problem, task, guidelines)}
	if imageB64 != "" {
		messages = append(messages, imageMessage(imageB64))
	}
	return messages, nil
}

// Correction builds the prompt that rewrites term text as LaTeX
func Correction(equations []ocr.Equation, imageB64 string) []llm.Message {
	sys := system(`**Role:** You are an expert in LaTeX-based equation processing.
**Task:** Use the **image** and **LaTeX representations of equations** to accurately convert each term's text representation into a **LaTeX string**.`)

	task := `**Task: Correct Term Representations in Equations**
- The provided **JSON object** contains equations with their **LaTeX representation** (accurate) and **terms** (text values may be inaccurate).
- Your task is to **correct the text representation of each term**, ensuring it accurately reflects its **LaTeX equivalent**.

**Input JSON Object:**
- **Equations:** Extracted from the **whiteboard image**, with correct LaTeX representations.
- **Terms:** Each equation consists of multiple terms, but their **text values may be incorrect**.

` + fence + "json\n" + mustJSON(equations) + "\n" + fence + `

**Example of Term Correction:**
- **Incorrect Representation:** The term **x²** might be written as **x2** in text.
- **Correction:** Convert the text representation into its correct **LaTeX string** form.

**Guidelines for Term Correction:**
- Use the **whiteboard image** and the **LaTeX representation** of equations to ensure accuracy.
- If the number of term objects in an equation is **insufficient**, logically **combine terms** to maintain equation integrity.
- **Ignore** all non-equation annotations (e.g., circles, curves, rectangles, crossed-out lines, arrows).

**Expected Output Format:**
Return a **JSON object** containing the corrected **LaTeX representation** for each term:

` + fence + `json
{"correctedTerms": [{"id": "string", "latex": "string"}]}
` + fence

	user := llm.Message{
		Role: llm.RoleUser,
		Content: []llm.Part{
			llm.TextPart(task),
			llm.ImagePart(llm.JPEGDataURL(imageB64)),
		},
	}
	return []llm.Message{sys, user}
}

// Chat builds the baseline tutor conversation. Images are attached to the
// last user message.
func Chat(question int, messages []llm.Message, images []string) ([]llm.Message, error) {
	ctx := Context{Question: question, Catalog: Baseline}
	q, s, err := ctx.problem()
	if err != nil {
		return nil, err
	}

	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, system(
		"You are an expert math tutor helping the user solve a math problem. Give step-by-step guidance, do not provide the full solution.",
		fmt.Sprintf("The math problem: %s\n\nThe full solution for the math problem: %s", q, s),
	))
	for _, m := range messages {
		m.Content = append([]llm.Part(nil), m.Content...)
		out = append(out, m)
	}

	if len(images) == 0 {
		return out, nil
	}
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role != llm.RoleUser {
			continue
		}
		for _, url := range images {
			out[i].Content = append(out[i].Content, llm.ImagePart(url))
		}
		break
	}
	return out, nil
}
