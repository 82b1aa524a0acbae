// Package llm provides the language model boundary for product
// classification and taxonomy generation. It includes a hand-rolled
// chat-completions client, request throttling with retry, and tolerant
// extraction of JSON values from free-text model output.
package llm
