package implementer

import (
	"fmt"
	"strings"

	"natural/internal/loader"
	"natural/internal/prompter"
	"natural/internal/spec"
)

const reasoningPrompt = "Think step by step about how to implement the function." +
	"\nAlso consider if the function can not be implemented because of an impossible specification."

func roleInstruction(policy loader.ImportPolicy) string {
	return "You are a Go expert who should help the user implement a Go function." +
		"\nNever use packages outside of Go's standard library! " + policy.Describe() +
		"\nDo not write a main function and do not write tests."
}

func taskMessage(target spec.Spec) string {
	return fmt.Sprintf("Please implement the function %q for me:\nSignature: func %s\nSpecification: %s",
		target.Name, target.Signature, target.Doc)
}

func sketchMessage(target spec.Spec, sketch string) string {
	if strings.TrimSpace(sketch) == "" {
		return ""
	}
	return "Here is a sketch of how the function should be implemented:\n\n" + target.Sketch(sketch)
}

func helperMessage(functions []Function) string {
	if len(functions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Use the following helper functions without defining them, I will later implement them for you:\n")
	for _, f := range functions {
		fmt.Fprintf(&b, "\nSignature: func %s\nSpecification: %s", f.Spec.Signature, f.Spec.Doc)
	}
	return b.String()
}

func mistakesMessage(errs []string) string {
	var b strings.Builder
	b.WriteString("Your implementation contains mistakes:")
	for i, e := range errs {
		fmt.Fprintf(&b, "\n%d. %s", i+1, e)
	}
	return b.String()
}

// decision is the model's answer to the implement/impossible gate.
type decision interface {
	isDecision()
}

type implementDecision struct {
	code string
}

type impossibleDecision struct {
	reason string
}

func (implementDecision) isDecision()  {}
func (impossibleDecision) isDecision() {}

var decisionOptions = []prompter.Option[decision]{
	{
		Label:     "implement",
		Condition: "If you have found an implementation",
		Action:    "Write your implementation and nothing else, not even examples",
		Effect:    "I will give you feedback on whether your implementation is correct",
		Build:     func(code string) decision { return implementDecision{code: code} },
	},
	{
		Label:     "impossible",
		Condition: "If you have found a reason why the function can not be implemented",
		Action:    "Write your reason",
		Effect:    "I will give you feedback on whether your reasoning is correct",
		Build:     func(reason string) decision { return impossibleDecision{reason: reason} },
	},
}
