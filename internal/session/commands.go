package session

import "strings"

// ///////////////////////////////////////////////
// Command Table
// ///////////////////////////////////////////////

// command describes one user-invokable verb: how many free-text arguments it
// takes, which statuses it is legal in, and the transition it runs. The
// table replaces reflective method lookup with an explicit descriptor per
// verb, so arity and status checks happen before any handler runs.
type command struct {
	// takesArg is true for verbs that consume the rest of the message as a
	// single free-text argument. Verbs without it reject trailing text.
	takesArg bool
	// allowed is the set of statuses the verb is legal in.
	allowed map[Status]bool
	// run executes the transition with the session lock held and the
	// status guard already satisfied.
	run func(s *Session, arg string)
}

// statuses builds an allowed-status set.
func statuses(list ...Status) map[Status]bool {
	set := make(map[Status]bool, len(list))
	for _, st := range list {
		set[st] = true
	}
	return set
}

// anyStatus allows a verb in every status.
var anyStatus = statuses(StatusLoggedOut, StatusActive, StatusPaused)

// commands is the fixed verb table. Verbs are matched case-insensitively
// against the first whitespace-delimited token of a message.
var commands = map[string]command{
	"login":         {allowed: statuses(StatusLoggedOut), run: (*Session).login},
	"update":        {takesArg: true, allowed: statuses(StatusActive), run: (*Session).update},
	"pause":         {allowed: statuses(StatusActive), run: (*Session).pause},
	"resume":        {allowed: statuses(StatusPaused), run: (*Session).resume},
	"logout":        {allowed: statuses(StatusActive, StatusPaused), run: (*Session).logout},
	"help":          {allowed: anyStatus, run: (*Session).help},
	"get_work_time": {allowed: statuses(StatusActive, StatusPaused), run: (*Session).workTime},
}

// ///////////////////////////////////////////////
// Parsing
// ///////////////////////////////////////////////

// splitCommand splits raw text on the first whitespace run into a lowercased
// verb and the remaining argument text, reported verbatim. hasArg
// distinguishes "pause now" (rejected for zero-arg verbs) from "pause".
func splitCommand(raw string) (verb, arg string, hasArg bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", false
	}
	idx := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if idx < 0 {
		return strings.ToLower(trimmed), "", false
	}
	return strings.ToLower(trimmed[:idx]), strings.TrimLeft(trimmed[idx:], " \t\n\r"), true
}

// ///////////////////////////////////////////////
// Dispatch
// ///////////////////////////////////////////////

// HandleCommand receives one raw message directed at the bot and executes it
// against this session. Unknown verbs, trailing text on zero-argument verbs,
// and verbs that are illegal in the current status each produce a rejection
// message and no mutation. Empty input is silently ignored.
//
// The session lock is held for the whole dispatch, serializing commands
// against the follow-up timer callback.
func (s *Session) HandleCommand(raw string) {
	verb, arg, hasArg := splitCommand(raw)
	if verb == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.env.Settings().Messages
	cmd, ok := commands[verb]
	if !ok {
		s.send(msgs.InvalidInput)
		return
	}
	if !cmd.takesArg && hasArg {
		s.send(msgs.NoArguments)
		return
	}
	if !cmd.allowed[s.status] {
		s.send(msgs.invalidStatusFor(s.status))
		return
	}
	cmd.run(s, arg)
}
