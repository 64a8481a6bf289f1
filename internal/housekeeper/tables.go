// Package housekeeper prunes the proxy's buffered history tables.
//
// Each cycle walks a fixed list of tables and, per table, deletes rows that
// are either older than the offline buffer or already sent upstream and
// older than the local buffer. How far back a single cycle may reach is
// bounded by the measured period between cycles, so a proxy that was down
// for a long time catches up gradually.
package housekeeper

// TableSpec names a buffered table and the key of its watermark in the ids table.
type TableSpec struct {
	TableName   string
	IDFieldName string
}

// Tables is the fixed list of buffered tables, pruned in this order.
var Tables = []TableSpec{
	{TableName: "proxy_history", IDFieldName: "history_lastid"},
	{TableName: "proxy_dhistory", IDFieldName: "dhistory_lastid"},
	{TableName: "proxy_autoreg_host", IDFieldName: "autoreg_host_lastid"},
}

// WatermarkTable holds the last id confirmed as sent, per (table_name, field_name).
const WatermarkTable = "ids"
