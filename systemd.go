package main

import (
	_ "embed"
	"io"
	"os"
	"os/user"
	"text/template"
)

//go:embed pinrelay.service
var pinrelayServiceEmbed string

type PinrelayServiceParams struct {
	BinaryPath string
	User       string
	Args       string
}

// SystemdServiceFile prints a unit for the running binary. The unit
// stops the service with SIGINT so pins are released on the way out.
func SystemdServiceFile() {
	if err := WriteSystemdServiceFile(os.Stdout, os.Args[1:]); err != nil {
		panic(err)
	}
}

func WriteSystemdServiceFile(w io.Writer, args []string) error {
	tmpl, err := template.New("pinrelay.service").Parse(pinrelayServiceEmbed)
	if err != nil {
		return err
	}

	path, err := os.Executable()
	if err != nil {
		return err
	}

	params := PinrelayServiceParams{
		BinaryPath: path,
		User:       "pi",
		Args:       serviceArgs(args),
	}
	if u, err := user.Current(); err == nil && u.Username != "root" {
		params.User = u.Username
	}

	return tmpl.Execute(w, params)
}

// serviceArgs forwards every flag except --systemd itself
func serviceArgs(args []string) string {
	var out string
	for _, arg := range args {
		if arg == "--systemd" {
			continue
		}
		out += " " + arg
	}
	return out
}
