package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Parser reads blocks from a gcode program one line at a time.
type Parser struct{ br *bufio.Reader }

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

var (
	lineRx    = regexp.MustCompile(`^([A-Z][0-9.\-]+)+$`)
	wordRx    = regexp.MustCompile(`[A-Z][0-9.\-]+`)
	commentRx = regexp.MustCompile(`\([^)]*\)`)
)

// Read returns the next non-empty block. Comments and program
// delimiters are skipped; io.EOF signals the end of the program.
func (p *Parser) Read() (ln Block, err error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}

		s = strings.SplitN(s, ";", 2)[0]
		s = commentRx.ReplaceAllString(s, "")
		s = strings.Replace(s, " ", "", -1)
		s = strings.TrimSpace(s)
		s = strings.ToUpper(s)

		if s == "" || s == "%" {
			continue
		}

		if !lineRx.MatchString(s) {
			return nil, errors.New("invalid or unhandled line: " + s)
		}

		codes := wordRx.FindAllString(s, -1)
		res := make([]Word, len(codes))

		for i, c := range codes {
			_, err = fmt.Sscanf(c, "%c%f", &res[i].W, &res[i].Arg)
			if err != nil {
				return nil, err
			}
		}

		return res, nil
	}
}
