package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heartbeatlive/go-heartbeat/adapters/gocommand"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/query"
)

type operationFlags struct {
	name         string
	document     string
	documentFile string
	variables    string
	policy       string
}

func (f *operationFlags) bind(cmd *cobra.Command, withPolicy bool) {
	cmd.Flags().StringVar(&f.name, "name", "", "operation name (required)")
	cmd.Flags().StringVar(&f.document, "document", "", "GraphQL document text")
	cmd.Flags().StringVar(&f.documentFile, "document-file", "", "read the GraphQL document from a file")
	cmd.Flags().StringVar(&f.variables, "variables", "", "variables as a JSON object")
	if withPolicy {
		cmd.Flags().StringVar(&f.policy, "policy", "cache-first", "cache policy: cache-first, network-first, network-only, cache-only")
	}
	_ = cmd.MarkFlagRequired("name")
}

func (f *operationFlags) operation(mutation bool) (core.Operation, error) {
	document := f.document
	if path := strings.TrimSpace(f.documentFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return core.Operation{}, fmt.Errorf("read document: %w", err)
		}
		document = string(raw)
	}

	var variables map[string]any
	if raw := strings.TrimSpace(f.variables); raw != "" {
		if err := json.Unmarshal([]byte(raw), &variables); err != nil {
			return core.Operation{}, core.NewBadInputError("variables must be a JSON object", map[string]any{"error": err.Error()})
		}
	}

	var op core.Operation
	if mutation {
		op = core.NewMutation(f.name, document, variables)
	} else {
		op = core.NewQuery(f.name, document, variables)
	}
	return op, op.Validate()
}

func newFetchCommand(opts *rootOptions) *cobra.Command {
	flags := &operationFlags{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run a query through the client cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := flags.operation(false)
			if err != nil {
				return err
			}
			policy, err := core.ParseCachePolicy(flags.policy)
			if err != nil {
				return err
			}
			s, err := opts.openClient(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.client.Fetch(cmd.Context(), op, policy)
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp)
		},
	}
	flags.bind(cmd, true)
	return cmd
}

func newPerformCommand(opts *rootOptions) *cobra.Command {
	flags := &operationFlags{}
	cmd := &cobra.Command{
		Use:   "perform",
		Short: "Run a mutation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := flags.operation(true)
			if err != nil {
				return err
			}
			s, err := opts.openClient(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.client.Perform(cmd.Context(), op)
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp)
		},
	}
	flags.bind(cmd, false)
	return cmd
}

func newCheckEmailCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-email EMAIL",
		Short: "Report whether an email already has an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openClient(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			subs, err := gocommand.RegisterClientHandlers(gocommand.NewRegistrar(nil), s.client)
			if err != nil {
				return err
			}
			defer subs.Unsubscribe()

			reservation, err := gocommand.Query[query.CheckEmailReservedMessage, query.EmailReservation](
				cmd.Context(),
				query.CheckEmailReservedMessage{Email: args[0]},
			)
			if err != nil {
				return err
			}
			status := "available"
			if reservation.Reserved {
				status = "reserved"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", reservation.Email, status)
			return err
		},
	}
}

func newEndpointCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint",
		Short: "Print the resolved GraphQL endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openClient(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			_, err = fmt.Fprintln(cmd.OutOrStdout(), s.client.Endpoint())
			return err
		},
	}
}

func writeResponse(w io.Writer, resp *core.Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}
