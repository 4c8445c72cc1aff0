package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nainya/codexindex/internal/server"
	"github.com/nainya/codexindex/pkg/index"
)

var (
	remoteAddr    string
	remoteTimeout time.Duration

	queryType     string
	queryField    string
	queryValue    string
	queryOperator string
	querySecField string
	querySecValue string
	querySecOp    string

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Run a query against a running server",
		Example: `  codexindex query --type exact --field water_state --value ws.ice
  codexindex query --type range --field fractal_layer --operator gte --value 3
  codexindex query --type composite --field water_state --value ws.ice --secondary-field chakra --secondary-value ch.crown`,
		RunE: runQuery,
	}

	checkpointCmd = &cobra.Command{
		Use:   "checkpoint",
		Short: "Ask a running server to snapshot and truncate its journal",
		RunE:  runCheckpoint,
	}
)

func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&remoteAddr, "addr", "localhost:50051", "Server address")
	cmd.Flags().DurationVar(&remoteTimeout, "timeout", 10*time.Second, "Request timeout")
}

func init() {
	addRemoteFlags(queryCmd)
	addRemoteFlags(checkpointCmd)

	f := queryCmd.Flags()
	f.StringVar(&queryType, "type", string(index.QueryExact), "Query type (exact, range, fuzzy, composite)")
	f.StringVar(&queryField, "field", "", "Field to query")
	f.StringVar(&queryValue, "value", "", "Value; JSON literals such as 3 or [\"a\",\"b\"] are decoded")
	f.StringVar(&queryOperator, "operator", "", "Range operator (eq, ne, gt, lt, gte, lte, in, not_in)")
	f.StringVar(&querySecField, "secondary-field", "", "Composite secondary field")
	f.StringVar(&querySecValue, "secondary-value", "", "Composite secondary value")
	f.StringVar(&querySecOp, "secondary-operator", "", "Composite secondary range operator")
	_ = queryCmd.MarkFlagRequired("field")
}

// parseValue decodes JSON literals and falls back to the raw string
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func dialServer() (*grpc.ClientConn, *server.Client, error) {
	conn, err := grpc.NewClient(remoteAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", remoteAddr, err)
	}
	return conn, server.NewClient(conn), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runQuery(cmd *cobra.Command, args []string) error {
	q := index.Query{
		Type:     index.QueryType(queryType),
		Field:    queryField,
		Value:    parseValue(queryValue),
		Operator: index.Operator(queryOperator),
	}
	if querySecField != "" {
		q.SecondaryField = querySecField
		q.SecondaryValue = parseValue(querySecValue)
		q.SecondaryOperator = index.Operator(querySecOp)
	}

	conn, client, err := dialServer()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
	defer cancel()

	res, err := client.Query(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	conn, client, err := dialServer()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
	defer cancel()

	res, err := client.Checkpoint(ctx)
	if err != nil {
		return err
	}
	return printJSON(res)
}
