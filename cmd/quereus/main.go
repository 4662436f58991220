// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command quereus is a standalone shell for the embeddable engine: it
// reads SQL from a script file or an interactive prompt, runs each
// statement against a fresh in-memory engine instance, and prints
// whatever rows come back.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dolthub/quereus"
	"github.com/dolthub/quereus/sql"
)

var (
	cfgFile  string
	readOnly bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quereus",
	Short: "An embeddable SQL engine shell",
	Long: `quereus is a shell for the embeddable SQL engine of the same name.

With no arguments it starts an interactive prompt reading statements
terminated by ';'. Given a file argument, it runs that file as a batch
of statements instead.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := newEngine()
		conn := eng.Connect()
		defer conn.Close(sql.NewEmptyContext())

		if len(args) == 1 {
			return runFile(conn, args[0])
		}
		return runRepl(conn)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a quereus.yaml config file (default: none)")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "readonly", false, "reject DML/DDL statements")
}

// loadConfig resolves engine tunables from, in increasing priority: the
// library defaults, an optional config file, and the QUEREUS_*
// environment variables viper auto-binds alongside it.
func loadConfig() quereus.Config {
	cfg := quereus.DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("QUEREUS")
	v.AutomaticEnv()
	v.SetDefault("cache_abandon_threshold", cfg.CacheAbandonThreshold)
	v.SetDefault("max_cte_iterations", cfg.MaxCTEIterations)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read config file %s: %v\n", cfgFile, err)
		}
	}

	cfg.CacheAbandonThreshold = v.GetInt64("cache_abandon_threshold")
	cfg.MaxCTEIterations = v.GetInt64("max_cte_iterations")
	return cfg
}

func newEngine() *quereus.Engine {
	eng := quereus.New(loadConfig())
	eng.WithReadOnly(readOnly)
	return eng
}

// runFile executes every statement in path as a single batch and prints
// the rows each one returns.
func runFile(conn *quereus.Connection, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ctx := sql.NewContext(context.Background(), conn.ID())
	return execBatch(ctx, conn, string(data))
}

// runRepl reads statements from stdin, one or more lines terminated by a
// trailing ';', and runs each as it completes.
func runRepl(conn *quereus.Connection) error {
	ctx := sql.NewContext(context.Background(), conn.ID())
	scanner := bufio.NewScanner(os.Stdin)
	var buf strings.Builder

	prompt := func() {
		if buf.Len() == 0 {
			fmt.Print("quereus> ")
		} else {
			fmt.Print("     ...> ")
		}
	}

	prompt()
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')

		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			text := buf.String()
			buf.Reset()
			if err := execBatch(ctx, conn, text); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		}
		prompt()
	}
	fmt.Println()
	return scanner.Err()
}

// execBatch prepares sqlText, runs every statement it contains and
// prints each one's result set in turn, matching a typical shell's
// semicolon-separated-batch behavior.
func execBatch(ctx *sql.Context, conn *quereus.Connection, sqlText string) error {
	s, err := conn.Prepare(sqlText)
	if err != nil {
		return err
	}
	defer s.Finalize()

	for {
		names, err := s.ColumnNames()
		if err != nil {
			return err
		}
		if readOnly {
			mutating, err := s.IsMutating()
			if err != nil {
				return err
			}
			if mutating {
				return sql.ErrReadOnly.New()
			}
		}
		rows, err := s.Run(ctx)
		if err != nil {
			return err
		}
		printRows(names, rows)

		more, err := s.NextStatement()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func printRows(names []string, rows []sql.Row) {
	if len(names) == 0 {
		return
	}
	fmt.Println(strings.Join(names, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
}
