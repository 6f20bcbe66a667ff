package repl

import (
	"fmt"
)

func (r *REPL) println(s string) {
	fmt.Fprintln(r.out, s)
}

func (r *REPL) displayError(err error) {
	r.println(r.formatter.FormatError(err))
}

func (r *REPL) displayInfo(msg string) {
	r.println(r.formatter.FormatInfo(msg))
}

func (r *REPL) displaySuccess(msg string) {
	r.println(r.formatter.FormatSuccess(msg))
}

func (r *REPL) displayWelcome() {
	fmt.Fprint(r.out, r.formatter.FormatWelcome(r.apiURL, r.safeWord))
}

func (r *REPL) displayHelp() {
	fmt.Fprint(r.out, r.formatter.FormatHelp(r.safeWord))
}
