// Command archcheck enforces the import boundaries between the layers of
// the repository: the public contract, the kernel, drivers and modules.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/samber/lo"
)

const modulePath = "subroll"

type goPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

// boundary forbids packages under from from importing packages under to.
type boundary struct {
	from string
	to   string
}

var boundaries = []boundary{
	{from: "pkg/subroll", to: "internal"},
	{from: "internal/kernel", to: "internal/driver"},
	{from: "internal/driver", to: "internal/kernel"},
	{from: "internal/telemetry", to: "internal/kernel"},
	{from: "internal", to: "modules"},
	{from: "modules", to: "internal"},
}

func main() {
	packages, err := goList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "archcheck: %v\n", err)
		os.Exit(1)
	}

	violations := check(packages)
	if len(violations) == 0 {
		fmt.Println("archcheck: ok")
		return
	}

	fmt.Printf("archcheck: %d import boundary violations\n", len(violations))
	for _, violation := range violations {
		fmt.Println("  " + violation)
	}
	os.Exit(1)
}

func goList() ([]goPackage, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("go list pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start go list: %w", err)
	}

	var packages []goPackage
	decoder := json.NewDecoder(stdout)
	for {
		var pkg goPackage
		err := decoder.Decode(&pkg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		packages = append(packages, pkg)
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("go list: %w", err)
	}

	return packages, nil
}

func check(packages []goPackage) []string {
	var violations []string
	for _, pkg := range packages {
		from := localPath(pkg.ImportPath)
		if from == "" {
			continue
		}
		for _, imported := range slices.Concat(pkg.Imports, pkg.TestImports, pkg.XTestImports) {
			to := localPath(imported)
			if to == "" {
				continue
			}
			if reason := forbidden(from, to); reason != "" {
				violations = append(violations, fmt.Sprintf("%s imports %s: %s", from, to, reason))
			}
		}
	}

	violations = lo.Uniq(violations)
	slices.Sort(violations)

	return violations
}

// localPath strips the module path and the " [pkg.test]" decoration go list
// adds to test variants. Packages outside the module map to "".
func localPath(importPath string) string {
	importPath, _, _ = strings.Cut(importPath, " ")
	rest, ok := strings.CutPrefix(importPath, modulePath+"/")
	if !ok {
		return ""
	}

	return strings.TrimSuffix(rest, ".test")
}

func within(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

func forbidden(from, to string) string {
	for _, rule := range boundaries {
		if within(from, rule.from) && within(to, rule.to) {
			return rule.from + " must not depend on " + rule.to
		}
	}

	if a, b := moduleName(from), moduleName(to); a != "" && b != "" && a != b {
		return "feature modules must stay independent"
	}

	return ""
}

func moduleName(path string) string {
	rest, ok := strings.CutPrefix(path, "modules/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")

	return strings.TrimSuffix(name, "_test")
}
