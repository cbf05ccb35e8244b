package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

const maxTracedQueryLen = 512

type querySpanKey struct{}

// queryTracer opens a sentry span per statement when the request is traced.
type queryTracer struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := compactSQL(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.sql.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	span.SetData("db.args", len(data.Args))
	if verb := sqlVerb(statement); verb != "" {
		span.SetData("db.operation", verb)
	}

	return context.WithValue(span.Context(), querySpanKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(querySpanKey{}).(*sentry.Span)
	if !ok || span == nil {
		return
	}
	defer span.Finish()

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
		return
	}
	span.Status = sentry.SpanStatusOK
	if rows := data.CommandTag.RowsAffected(); rows >= 0 {
		span.SetData("db.rows_affected", rows)
	}
}

func compactSQL(query string) string {
	compacted := strings.Join(strings.Fields(query), " ")
	if compacted == "" {
		return "sql.query"
	}
	if len(compacted) > maxTracedQueryLen {
		return compacted[:maxTracedQueryLen]
	}
	return compacted
}

func sqlVerb(query string) string {
	verb, _, _ := strings.Cut(query, " ")
	return strings.ToUpper(verb)
}
