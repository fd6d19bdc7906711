package security

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Limits struct {
	MaxString int
	MaxPath   int
	AllowNL   bool
	AllowTab  bool
}

func DefaultLimits() Limits {
	return Limits{
		MaxString: 4096,
		MaxPath:   4096,
		AllowNL:   true,
		AllowTab:  true,
	}
}

// ValidateString rejects invalid UTF-8, NUL bytes, control runes, and values
// longer than lim.MaxString runes.
func ValidateString(name, s string, lim Limits) error {
	return validate(name, s, lim.MaxString, lim)
}

// ValidatePath is ValidateString bounded by lim.MaxPath.
func ValidatePath(name, s string, lim Limits) error {
	return validate(name, s, lim.MaxPath, lim)
}

func validate(name, s string, max int, lim Limits) error {
	if s == "" {
		return nil
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s: invalid UTF-8", name)
	}
	if strings.ContainsRune(s, '\x00') {
		return fmt.Errorf("%s: contains NUL byte", name)
	}
	if n := utf8.RuneCountInString(s); n > max {
		return fmt.Errorf("%s: too long (%d > %d)", name, n, max)
	}
	for _, r := range s {
		if (r == '\n' && lim.AllowNL) || (r == '\t' && lim.AllowTab) {
			continue
		}
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%s: contains non-printable/control runes", name)
		}
	}
	return nil
}

func isPathy(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "path") || strings.Contains(lower, "file") || strings.Contains(lower, "dir")
}

// ValidateStructStrings walks obj and validates every string it reaches.
func ValidateStructStrings(obj any, lim Limits) error {
	return walkValue(reflect.ValueOf(obj), "config", lim, map[uintptr]bool{})
}

func walkValue(v reflect.Value, path string, lim Limits, seen map[uintptr]bool) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		return walkValue(v.Elem(), path, lim, seen)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !v.Field(i).CanInterface() {
				continue
			}
			if err := walkValue(v.Field(i), path+"."+t.Field(i).Name, lim, seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			if err := walkValue(v.MapIndex(k), path+"["+fmt.Sprint(k.Interface())+"]", lim, seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := walkValue(v.Index(i), fmt.Sprintf("%s[%d]", path, i), lim, seen); err != nil {
				return err
			}
		}
	case reflect.String:
		if isPathy(path) {
			return ValidatePath(path, v.String(), lim)
		}
		return ValidateString(path, v.String(), lim)
	}
	return nil
}

// AttachRecursive installs argument and flag validation on root and every subcommand.
func AttachRecursive(root *cobra.Command, lim Limits) {
	attach(root, lim)
	for _, c := range root.Commands() {
		AttachRecursive(c, lim)
	}
}

func attach(cmd *cobra.Command, lim Limits) {
	prev := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := validateFlagsAndArgs(c, args, lim); err != nil {
			return err
		}
		if prev != nil {
			return prev(c, args)
		}
		return nil
	}
}

func validateFlagsAndArgs(cmd *cobra.Command, args []string, lim Limits) error {
	for i, a := range args {
		if err := ValidateString(fmt.Sprintf("arg[%d]", i), a, lim); err != nil {
			return err
		}
	}

	var firstErr error
	check := func(name, flag, val string) {
		if firstErr != nil || val == "" {
			return
		}
		if isPathy(flag) {
			firstErr = ValidatePath(name, val, lim)
		} else {
			firstErr = ValidateString(name, val, lim)
		}
	}

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		name := fmt.Sprintf("flag --%s", f.Name)
		switch f.Value.Type() {
		case "string":
			val, _ := cmd.Flags().GetString(f.Name)
			check(name, f.Name, val)
		case "stringSlice":
			vals, _ := cmd.Flags().GetStringSlice(f.Name)
			for i, v := range vals {
				check(fmt.Sprintf("%s[%d]", name, i), f.Name, v)
			}
		}
	})
	return firstErr
}
