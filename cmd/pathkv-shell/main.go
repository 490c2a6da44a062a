// Command pathkv-shell is an interactive REPL over a pathkv store, useful
// for poking at a store from a terminal without writing a Go program.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/pathkv/pathkv"
)

func main() {
	dir := pflag.StringP("dir", "d", "./pathkv-data", "store directory")
	pflag.Parse()

	db, err := pathkv.Open(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening store at %s: %v\n", *dir, err)
		os.Exit(1)
	}
	defer db.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("pathkv shell — store at %s. Commands: set, set-r, get, del, del-sub, flush, exit\n", *dir)

	for {
		input, err := line.Prompt("pathkv> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading input: %v\n", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !runCommand(db, input) {
			return
		}
	}
}

func runCommand(db *pathkv.DB, input string) bool {
	fields := strings.SplitN(input, " ", 3)
	cmd := fields[0]

	switch cmd {
	case "exit", "quit":
		return false

	case "set":
		if len(fields) != 3 {
			fmt.Println("usage: set <path> <value>")
			return true
		}
		if err := db.Set(fields[1], fields[2], false); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("OK")
		}

	case "set-r":
		if len(fields) != 3 {
			fmt.Println("usage: set-r <path> <value>")
			return true
		}
		if err := db.Set(fields[1], fields[2], true); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("OK")
		}

	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <path>")
			return true
		}
		path := fields[1]
		if strings.HasSuffix(path, "/") {
			json, err := db.GetSubtree(path)
			if err != nil {
				fmt.Println("error:", err)
				return true
			}
			fmt.Println(json)
			return true
		}
		value, found, err := db.Get(path)
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		if !found {
			fmt.Println("NOT_FOUND")
			return true
		}
		fmt.Println(value)

	case "del":
		if len(fields) != 2 {
			fmt.Println("usage: del <path>")
			return true
		}
		if err := db.Delete(fields[1]); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("OK")
		}

	case "del-sub":
		if len(fields) != 2 {
			fmt.Println("usage: del-sub <prefix>")
			return true
		}
		if err := db.DeleteSubtree(fields[1]); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("OK")
		}

	case "flush":
		if err := db.Flush(); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("OK")
		}

	default:
		fmt.Printf("unknown command %q\n", cmd)
	}

	return true
}
