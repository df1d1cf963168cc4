// Package symlib merges KiCad symbol libraries.
//
// Structured (.kicad_sym) libraries are merged by lifting every top-level
// (symbol ...) block out of each input with a parenthesis balance counter
// and re-emitting them under one shared kicad_symbol_lib wrapper. Legacy
// (.lib) libraries are merged by slicing a fixed header and footer off each
// file, see MergeLegacy.
package symlib

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// SymbolOpen is the token that starts a symbol block.
const SymbolOpen = "(symbol"

// ErrUnterminatedBlock is returned when input ends inside a symbol block.
var ErrUnterminatedBlock = errors.Base("unterminated symbol block")

// ExtractBlocks returns the text of each symbol block in text, in order.
//
// A block starts on a line whose left-trimmed text begins with "(symbol"
// and ends once the running count of '(' minus ')' is back to zero and at
// least one line after the start has been consumed. Lines outside blocks
// are dropped. If the input ends inside a block the complete blocks are
// still returned together with ErrUnterminatedBlock.
func ExtractBlocks(text string) ([]string, error) {
	lines := splitLines(text)

	var (
		blocks  []string
		current []string
		balance int
		open    bool
	)
	for _, line := range lines {
		if !open {
			if !strings.HasPrefix(strings.TrimLeft(line, " \t"), SymbolOpen) {
				continue
			}
			open = true
			current = []string{line}
			balance = parenBalance(line)
			continue
		}

		current = append(current, line)
		balance += parenBalance(line)
		if balance == 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
			open = false
		}
	}

	if open {
		return blocks, errors.WithDetails(ErrUnterminatedBlock, "firstLine", strings.TrimSpace(current[0]))
	}
	return blocks, nil
}

func parenBalance(line string) int {
	return strings.Count(line, "(") - strings.Count(line, ")")
}

// splitLines splits on '\n' after normalising CRLF line endings.
func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
