package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-session/internal/model"
)

type verb string

const (
	verbShow   verb = "show"
	verbNext   verb = "next"
	verbPrev   verb = "prev"
	verbGoto   verb = "goto"
	verbPick   verb = "pick"
	verbWrite  verb = "write"
	verbFlush  verb = "flush"
	verbSubmit verb = "submit"
	verbQuit   verb = "quit"
	verbHelp   verb = "help"
)

const helpText = `commands:
  show            redraw the current question
  next, prev      move one question
  goto N          jump to question N
  pick a[,b]      choose option(s); "pick" alone clears the choice
  write TEXT      replace the essay answer
  flush           save the current answer now
  submit          hand in the exam
  quit            leave without submitting`

type command struct {
	verb  verb
	order int
	args  string
}

var errUnknownCommand = errors.New("unknown command, type help")

// parseCommand splits one input line. Aliases n, p, g and w are accepted.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{verb: verbShow}, nil
	}
	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(head) {
	case "show", "s":
		return command{verb: verbShow}, nil
	case "next", "n":
		return command{verb: verbNext}, nil
	case "prev", "p":
		return command{verb: verbPrev}, nil
	case "goto", "g":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("goto needs a question number, got %q", rest)
		}
		return command{verb: verbGoto, order: n}, nil
	case "pick":
		return command{verb: verbPick, args: rest}, nil
	case "write", "w":
		return command{verb: verbWrite, args: rest}, nil
	case "flush":
		return command{verb: verbFlush}, nil
	case "submit":
		return command{verb: verbSubmit}, nil
	case "quit", "q", "exit":
		return command{verb: verbQuit}, nil
	case "help", "h", "?":
		return command{verb: verbHelp}, nil
	default:
		return command{}, errUnknownCommand
	}
}

// pickAnswer builds the answer for "pick" on q. Option ids are matched
// case-insensitively.
func pickAnswer(q *model.Question, args string) (model.Answer, error) {
	if q.Type == model.QuestionTypeEssay {
		return model.Answer{}, errors.New("this is an essay question, use write")
	}

	var ids []string
	for _, f := range strings.FieldsFunc(args, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, ok := optionID(q, f)
		if !ok {
			return model.Answer{}, fmt.Errorf("no option %q", f)
		}
		ids = append(ids, id)
	}

	if q.MultipleSelect {
		return model.MultiChoice(ids...), nil
	}
	switch len(ids) {
	case 0:
		return model.SingleChoice(""), nil
	case 1:
		return model.SingleChoice(ids[0]), nil
	default:
		return model.Answer{}, errors.New("this question takes one option")
	}
}

func optionID(q *model.Question, s string) (string, bool) {
	for _, o := range q.Options {
		if strings.EqualFold(o.ID, s) {
			return o.ID, true
		}
	}
	return "", false
}

func writeAnswer(q *model.Question, text string) (model.Answer, error) {
	if q.Type != model.QuestionTypeEssay {
		return model.Answer{}, errors.New("this is a multiple choice question, use pick")
	}
	return model.TextAnswer(text), nil
}

// confirmed accepts only an explicit yes.
func confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "ya":
		return true
	}
	return false
}

func declined(answer string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "n")
}
