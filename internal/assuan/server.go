// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustd.
//
// go-trustd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package assuan

import (
	"io"
	"strings"
)

// HandlerFunc processes one command. LINE is the request line with the
// command keyword already stripped. A non-nil return is reported to the
// peer as an ERR line carrying the error's wire code.
type HandlerFunc func(ctx *Context, line string) error

// Command binds a protocol keyword to its handler and inline help text.
type Command struct {
	Name    string
	Handler HandlerFunc
	Help    string
}

// Server is the generic command dispatcher for one protocol endpoint.
// Built-in commands (BYE, RESET, NOP, HELP, OPTION) are handled here;
// everything else is dispatched through the registered command table.
type Server struct {
	commands map[string]*Command
	order    []string

	// HelloLine is sent as the initial OK greeting of a session.
	HelloLine string

	// OnOption receives OPTION key/value pairs. Returning an error with
	// CodeUnknownOption rejects unknown keys.
	OnOption func(key, value string) error

	// OnReset is invoked for the RESET built-in, after which OK is sent.
	OnReset func()
}

// NewServer creates an empty dispatcher.
func NewServer() *Server {
	return &Server{commands: make(map[string]*Command)}
}

// Register adds a command to the dispatch table. Registration order is
// preserved for HELP output.
func (s *Server) Register(name string, handler HandlerFunc, help string) {
	s.commands[name] = &Command{Name: name, Handler: handler, Help: help}
	s.order = append(s.order, name)
}

// Process runs the command loop for one session until the peer closes the
// connection or sends BYE. Each command, including any nested inquiries,
// runs to completion before the next line is read.
func (s *Server) Process(rw io.ReadWriter) error {
	ctx := NewContext(rw)

	greeting := "trustd at your service"
	if s.HelloLine != "" {
		greeting = s.HelloLine
	}
	if err := ctx.OK(greeting); err != nil {
		return err
	}

	for {
		line, err := ctx.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err == ErrLineTooLong {
			if werr := ctx.Err(CodeTransport, err.Error()); werr != nil {
				return werr
			}
			continue
		}
		if err != nil {
			return err
		}
		if line == "" || line[0] == '#' {
			continue
		}

		keyword, rest := splitKeyword(line)
		var done bool
		done, err = s.dispatch(ctx, keyword, rest)
		if done {
			return err
		}
		if err != nil {
			if werr := ctx.Err(CodeOf(err), err.Error()); werr != nil {
				return werr
			}
			continue
		}
		if err := ctx.OK(""); err != nil {
			return err
		}
	}
}

// dispatch runs one command. The first return value is true when the
// session should end.
func (s *Server) dispatch(ctx *Context, keyword, rest string) (bool, error) {
	switch keyword {
	case "BYE":
		err := ctx.OK("closing connection")
		return true, err
	case "NOP":
		return false, nil
	case "RESET":
		if s.OnReset != nil {
			s.OnReset()
		}
		return false, nil
	case "HELP":
		return false, s.help(ctx, rest)
	case "OPTION":
		return false, s.option(rest)
	}

	cmd, ok := s.commands[keyword]
	if !ok {
		return false, Errorf(CodeUnknownCommand, "unknown command %q", keyword)
	}
	return false, cmd.Handler(ctx, rest)
}

// help emits the registered help text for one command, or the list of
// command names when no argument is given.
func (s *Server) help(ctx *Context, line string) error {
	name := strings.TrimSpace(line)
	if name == "" {
		for _, n := range s.order {
			if err := ctx.StatusHelp(n); err != nil {
				return err
			}
		}
		return nil
	}
	cmd, ok := s.commands[name]
	if !ok {
		return Errorf(CodeUnknownCommand, "unknown command %q", name)
	}
	if cmd.Help == "" {
		return nil
	}
	return ctx.StatusHelp(cmd.Help)
}

// option parses an "OPTION key=value" line and forwards it. A leading
// "--" on the key and a missing value are both tolerated.
func (s *Server) option(line string) error {
	kv := strings.TrimSpace(line)
	kv = strings.TrimPrefix(kv, "--")
	key, value := kv, ""
	if i := strings.IndexByte(kv, '='); i >= 0 {
		key, value = kv[:i], kv[i+1:]
	}
	if key == "" {
		return Errorf(CodeParameter, "option name missing")
	}
	if s.OnOption == nil {
		return Errorf(CodeUnknownOption, "unknown option %q", key)
	}
	return s.OnOption(key, value)
}

func splitKeyword(line string) (string, string) {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], strings.TrimLeft(line[i+1:], " ")
	}
	return line, ""
}
