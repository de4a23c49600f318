package spreadlib

import (
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/spread-install/spread/pkg/dirinstaller"
)

// AskWait implements dirinstaller.Owner. When the façade is configured for
// interactive use and the process is attached to a terminal, it poses
// options via a select prompt; otherwise it returns defaultChoice
// immediately (backup for add conflicts, keep for delete conflicts)
// without blocking.
func (o *facadeOwner) AskWait(prompt string, options []string, defaultChoice int) (int, error) {
	if !o.spread.interactive || !isatty.IsTerminal(os.Stdout.Fd()) {
		return defaultChoice, nil
	}

	opts := make([]huh.Option[int], len(options))
	for i, label := range options {
		opts[i] = huh.NewOption(label, i)
	}

	choice := defaultChoice
	err := huh.NewSelect[int]().
		Title(prompt).
		Options(opts...).
		Value(&choice).
		Run()
	if err != nil {
		// A cancelled or unusable prompt falls back to the documented
		// default rather than failing the whole install.
		return defaultChoice, nil
	}
	return choice, nil
}

var _ dirinstaller.Owner = (*facadeOwner)(nil)
