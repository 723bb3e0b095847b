// Package exprtemplate evaluates `${{ ... }}` expressions embedded in
// workflow documents. Expressions use expr-lang syntax against a context
// exposing the event, the environment and prior step outcomes.
package exprtemplate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

var ErrUnterminated = errors.New("unterminated ${{ expression")

const (
	openMarker  = "${{"
	closeMarker = "}}"
)

// Context is the data visible to expressions.
type Context struct {
	Env    map[string]string
	Event  map[string]any
	Job    map[string]any
	Runner map[string]any

	// outcome of prior steps by id: "success", "failure", "skipped"
	Steps map[string]any

	// job state, drives success() / failure()
	JobFailed    bool
	JobCancelled bool
}

func (c *Context) env() map[string]any {
	env := map[string]any{
		"env":    c.Env,
		"event":  c.Event,
		"job":    c.Job,
		"runner": c.Runner,
		"steps":  c.Steps,

		"success": func() bool {
			return !c.JobFailed && !c.JobCancelled
		},
		"failure": func() bool {
			return c.JobFailed
		},
		"cancelled": func() bool {
			return c.JobCancelled
		},
		"always": func() bool {
			return true
		},
	}

	return env
}

// Eval evaluates a single expression without the ${{ }} delimiters.
func Eval(source string, evalContext *Context) (any, error) {
	program, err := expr.Compile(normalizeCalls(source), expr.Env(evalContext.env()), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", source, err)
	}

	value, err := expr.Run(program, evalContext.env())
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", source, err)
	}

	return value, nil
}

// EvalCondition evaluates a step `if:` condition. An empty condition
// defaults to success(). The ${{ }} wrapper is optional, matching how
// authors write conditions in workflow files.
func EvalCondition(condition string, evalContext *Context) (bool, error) {
	condition = strings.TrimSpace(condition)

	if condition == "" {
		condition = "success()"
	}

	if inner, ok := unwrap(condition); ok {
		condition = inner
	}

	value, err := Eval(condition, evalContext)
	if err != nil {
		return false, err
	}

	return truthy(value), nil
}

// Render replaces every ${{ ... }} span in the input with its evaluated
// value. Text outside spans passes through untouched.
func Render(input string, evalContext *Context) (string, error) {
	var out strings.Builder

	for {
		start := strings.Index(input, openMarker)
		if start == -1 {
			out.WriteString(input)

			return out.String(), nil
		}

		end := strings.Index(input[start:], closeMarker)
		if end == -1 {
			return "", fmt.Errorf("%w at %q", ErrUnterminated, input[start:])
		}

		out.WriteString(input[:start])

		source := input[start+len(openMarker) : start+end]

		value, err := Eval(strings.TrimSpace(source), evalContext)
		if err != nil {
			return "", err
		}

		out.WriteString(stringify(value))

		input = input[start+end+len(closeMarker):]
	}
}

// RenderMap renders every value of a string map, leaving keys untouched.
func RenderMap(values map[string]string, evalContext *Context) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	rendered := make(map[string]string, len(values))

	for key, value := range values {
		result, err := Render(value, evalContext)
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", key, err)
		}

		rendered[key] = result
	}

	return rendered, nil
}

func unwrap(condition string) (string, bool) {
	if !strings.HasPrefix(condition, openMarker) || !strings.HasSuffix(condition, closeMarker) {
		return "", false
	}

	inner := condition[len(openMarker) : len(condition)-len(closeMarker)]

	// reject "${{ a }} && ${{ b }}": the wrapper must span the whole string
	if strings.Contains(inner, openMarker) || strings.Contains(inner, closeMarker) {
		return "", false
	}

	return strings.TrimSpace(inner), true
}

// contains, startsWith and endsWith are infix operators in expr, so the
// call spelling workflow authors write ("startsWith(a, b)") does not lex.
// normalizeCalls rewrites two-argument calls of those names into the
// operator form. String literals pass through untouched.
var infixNames = []string{"contains", "endsWith", "startsWith"}

func normalizeCalls(source string) string {
	var out strings.Builder

	for i := 0; i < len(source); {
		if ch := source[i]; ch == '"' || ch == '\'' {
			end := skipString(source, i)
			out.WriteString(source[i:end])
			i = end

			continue
		}

		name, ok := infixNameAt(source, i)
		if !ok {
			out.WriteByte(source[i])
			i++

			continue
		}

		open := i + len(name)
		for open < len(source) && source[open] == ' ' {
			open++
		}

		if open >= len(source) || source[open] != '(' {
			out.WriteString(source[i:open])
			i = open

			continue
		}

		closing := matchingParen(source, open)
		if closing == -1 {
			out.WriteString(source[i:])

			break
		}

		args := splitArgs(source[open+1 : closing])
		if len(args) != 2 {
			out.WriteString(source[i : closing+1])
			i = closing + 1

			continue
		}

		left := normalizeCalls(strings.TrimSpace(args[0]))
		right := normalizeCalls(strings.TrimSpace(args[1]))

		// parenthesize both operands so lower-precedence operators inside
		// an argument cannot re-associate
		fmt.Fprintf(&out, "((%s) %s (%s))", left, name, right)

		i = closing + 1
	}

	return out.String()
}

func infixNameAt(source string, i int) (string, bool) {
	if i > 0 && isIdentChar(source[i-1]) {
		return "", false
	}

	for _, name := range infixNames {
		if !strings.HasPrefix(source[i:], name) {
			continue
		}

		if next := i + len(name); next < len(source) && isIdentChar(source[next]) {
			continue
		}

		return name, true
	}

	return "", false
}

func isIdentChar(ch byte) bool {
	return ch == '_' || ch == '.' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// skipString returns the index just past the string literal opening at i.
func skipString(source string, i int) int {
	quote := source[i]

	for i++; i < len(source); i++ {
		switch source[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}

	return len(source)
}

// matchingParen returns the index of the ')' closing the '(' at open, or
// -1 when unbalanced.
func matchingParen(source string, open int) int {
	depth := 0

	for i := open; i < len(source); i++ {
		switch source[i] {
		case '"', '\'':
			i = skipString(source, i) - 1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

// splitArgs splits an argument list on top-level commas.
func splitArgs(list string) []string {
	var args []string

	depth := 0
	start := 0

	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '"', '\'':
			i = skipString(list, i) - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, list[start:i])
				start = i + 1
			}
		}
	}

	return append(args, list[start:])
}

func truthy(value any) bool {
	switch value := value.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case int:
		return value != 0
	case float64:
		return value != 0
	}

	return true
}

func stringify(value any) string {
	switch value := value.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		if value {
			return "true"
		}

		return "false"
	}

	return fmt.Sprintf("%v", value)
}
