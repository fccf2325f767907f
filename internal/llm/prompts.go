package llm

import "strings"

// BasePrompt instructs the model to answer in complete sentences suitable for
// TTS output and to suggest follow-up questions.
const BasePrompt = "Du bist ein KI Agent, welcher Antworten auf Fragen von den Nutzern geben kann. " +
	"Rege den Nutzer am Ende deiner Antwort an weitere Fragen zu stellen und mache dazu einige Vorschläge. " +
	"Gebe nur ganze Sätze wieder, welche mit Hilfe von TTS an den Benutzer ausgegeben werden."

// BuildPrompt assembles the final prompt, including a context block when
// retrieval produced relevant documents.
func BuildPrompt(query string, contextDocs []string) string {
	if len(contextDocs) == 0 {
		return BasePrompt + "\n\nFrage: " + query
	}

	var b strings.Builder
	b.WriteString(BasePrompt)
	b.WriteString("\n\nKontext:\n")
	for _, doc := range contextDocs {
		b.WriteString(doc)
		b.WriteString("\n")
	}
	b.WriteString("\nFrage: ")
	b.WriteString(query)
	return b.String()
}
