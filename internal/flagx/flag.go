// Package flagx holds helpers for components that parse only their own
// subset of the process command line.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the elements of args that name one of flags, together
// with their values. Flags are matched by name, so "-d" in flags also
// accepts "--d" and "-d=..." on the command line.
//
// A separate value is taken only when the next argument does not start with
// "-". The returned slice is never nil.
func FilterArgs(args []string, flags []string) []string {
	known := nameSet(flags)
	kept := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		name, inline, ok := parseFlag(args[i])
		if !ok {
			continue
		}
		if _, want := known[name]; !want {
			continue
		}

		kept = append(kept, args[i])
		if !inline && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			kept = append(kept, args[i])
		}
	}

	return kept
}

// FilterBoolArgs is FilterArgs for boolean flags: the following argument is
// never taken as a value, so explicit values need the "-f=false" form.
func FilterBoolArgs(args []string, flags []string) []string {
	known := nameSet(flags)
	kept := make([]string, 0, len(args))

	for _, arg := range args {
		if name, _, ok := parseFlag(arg); ok {
			if _, want := known[name]; want {
				kept = append(kept, arg)
			}
		}
	}
	return kept
}

// parseFlag splits "-name", "--name" or "-name=value" into the bare name and
// whether the value is inline. ok is false for non-flags and for "--".
func parseFlag(arg string) (name string, inline bool, ok bool) {
	if !strings.HasPrefix(arg, "-") {
		return "", false, false
	}
	name = strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
	if i := strings.IndexByte(name, '='); i >= 0 {
		name, inline = name[:i], true
	}
	return name, inline, name != ""
}

func nameSet(flags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		if name, _, ok := parseFlag(f); ok {
			set[name] = struct{}{}
		}
	}
	return set
}

// ConfigFileFlag returns the JSON config path given with -c or -config on the
// process command line, or "" when neither is present.
func ConfigFileFlag() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "path to config file")
	fs.StringVar(&config, "c", "", "path to config file (short)")
	_ = fs.Parse(args)

	return config
}
