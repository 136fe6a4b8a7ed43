package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/tunnelgate/internal/auth"
)

var (
	styleGood  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")).Bold(true)
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D")).Bold(true)
	styleBad   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c757d"))
)

// ErrPasswordMismatch is returned by the hash check mode when the password
// does not match the given hash.
var ErrPasswordMismatch = errors.New("password does not match hash")

// RunHash implements the hash subcommand:
//
//	hash                  prompt for a password and print its hash
//	hash <password>       print the hash of password
//	hash <password> <h>   check password against h
func RunHash(args []string, out io.Writer) error {
	switch len(args) {
	case 0:
		password, err := promptPassword()
		if err != nil {
			return err
		}
		printStrength(out, password)
		return printHash(out, password)
	case 1:
		return printHash(out, args[0])
	case 2:
		return checkHash(out, args[0], args[1])
	default:
		return fmt.Errorf("usage: hash [password [hash]]")
	}
}

func printHash(out io.Writer, password string) error {
	hash, err := auth.HashPassword(password, auth.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "PASSWORD_HASH='%s'\n", hash)
	return nil
}

func checkHash(out io.Writer, password, hash string) error {
	if !auth.IsHash(hash) {
		return fmt.Errorf("not a bcrypt hash: %q", hash)
	}
	if !auth.Verify(password, hash) {
		fmt.Fprintln(out, styleBad.Render("Password does not match"))
		return ErrPasswordMismatch
	}
	fmt.Fprintln(out, styleGood.Render("Password matches"))
	return nil
}

func printStrength(out io.Writer, password string) {
	s := auth.CalculateStrength(password)
	style := styleBad
	switch {
	case s.Score >= 3:
		style = styleGood
	case s.Score == 2:
		style = styleWarn
	}
	fmt.Fprintln(out, style.Render(s.Feedback[0]))
	for _, hint := range s.Feedback[1:] {
		fmt.Fprintln(out, styleMuted.Render("  "+hint))
	}
	if err := auth.CheckPassword(password, auth.DefaultPasswordPolicy()); err != nil {
		fmt.Fprintln(out, styleWarn.Render("Warning: "+err.Error()))
	}
}

func promptPassword() (string, error) {
	var password, confirm string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("password cannot be empty")
					}
					return nil
				}).
				Value(&password),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s != password {
						return errors.New("passwords do not match")
					}
					return nil
				}).
				Value(&confirm),
		),
	).WithTheme(huh.ThemeBase16()).WithOutput(os.Stderr)

	if err := form.Run(); err != nil {
		return "", err
	}
	return password, nil
}
