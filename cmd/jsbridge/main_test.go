package main

import (
	"errors"
	"io"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPrompter struct {
	lines   []string
	err     error
	prompts []string
}

func (p *scriptedPrompter) Prompt(prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.lines) == 0 {
		return "", p.err
	}
	line := p.lines[0]
	p.lines = p.lines[1:]
	return line, nil
}

func TestReadStatement(t *testing.T) {
	t.Run("SingleLine", func(t *testing.T) {
		p := &scriptedPrompter{lines: []string{"1 + 1"}, err: io.EOF}
		code, err := readStatement(p)
		require.NoError(t, err)
		assert.Equal(t, "1 + 1", code)
		assert.Equal(t, []string{promptMain}, p.prompts)
	})

	t.Run("Continuation", func(t *testing.T) {
		p := &scriptedPrompter{lines: []string{"function f() {", "return 1;", "}"}, err: io.EOF}
		code, err := readStatement(p)
		require.NoError(t, err)
		assert.Equal(t, "function f() {\nreturn 1;\n}", code)
		assert.Equal(t, []string{promptMain, promptCont, promptCont}, p.prompts)
	})

	t.Run("EndOfInput", func(t *testing.T) {
		_, err := readStatement(&scriptedPrompter{err: io.EOF})
		assert.ErrorIs(t, err, io.EOF)

		_, err = readStatement(&scriptedPrompter{err: liner.ErrPromptAborted})
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("TerminalError", func(t *testing.T) {
		broken := errors.New("terminal gone")
		p := &scriptedPrompter{err: broken}
		_, err := readStatement(p)
		require.ErrorIs(t, err, broken)
		assert.False(t, errors.Is(err, io.EOF))
		assert.EqualError(t, err, "read input: terminal gone")
		assert.Len(t, p.prompts, 1)
	})
}
