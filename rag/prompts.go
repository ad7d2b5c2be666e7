package rag

import "fmt"

const noContextAnswer = "The provided context does not contain the answer to this question."

const answerSystemPrompt = "You are a helpful assistant answering questions based ONLY on the provided context " +
	"from a meeting transcript. If the context doesn't contain the answer, say '" + noContextAnswer + "' " +
	"Do not make up information."

const emptyContext = "No relevant context found."

func answerPrompt(context, question string) string {
	if context == "" {
		context = emptyContext
	}
	return fmt.Sprintf(`Context from the transcript:
---
%s
---

Question: %s

Answer based only on the context:`, context, question)
}
