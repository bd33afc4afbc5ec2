package store

import (
	"strings"

	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
)

const (
	upsertMessageSQL = `INSERT INTO darwin_messages VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (message_id)
		DO UPDATE SET (category, severity, suppress, stations, message)=
		(EXCLUDED.category, EXCLUDED.severity, EXCLUDED.suppress, EXCLUDED.stations, EXCLUDED.message);`

	deleteMessageSQL = "DELETE FROM darwin_messages WHERE message_id=$1;"
)

// messageOps folds an OW station message in. A message with no
// attached stations is a retraction and deletes the stored row.
func (s *Store) messageOps(record *xmlparse.Node) ([]Op, error) {
	var stations []string
	var body string

	for _, child := range record.List() {
		switch child.Tag() {
		case "Station":
			stations = append(stations, child.Attr("crs"))
		case "Msg":
			body = child.Text()
		}
	}

	if len(stations) == 0 {
		return []Op{Single(deleteMessageSQL, record.Attr("id"))}, nil
	}

	return []Op{Single(upsertMessageSQL,
		record.Attr("id"), record.Attr("cat"), record.Attr("sev"),
		attrFlag(record, "suppress"), stations, cleanMessage(body),
	)}, nil
}

// cleanMessage normalizes the HTML fragments Darwin wraps messages in.
// Some messages arrive enclosed in <p> tags, some carry an empty
// <p></p> mid-text, and multi-paragraph messages become <br> separated.
func cleanMessage(body string) string {
	body = strings.TrimPrefix(body, "<p>")
	body = strings.TrimSuffix(body, "</p>")
	body = strings.ReplaceAll(body, "<p></p>", "")
	return strings.ReplaceAll(body, "</p><p>", "<br>")
}
