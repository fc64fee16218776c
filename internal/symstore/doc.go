// Package symstore reads the symbol store history log and decides which
// symbol transactions have outlived the retention window.
//
// The history log lives at <server>/000Admin/history.txt and is appended to
// by symstore.exe in real time, so file order is chronological order.
// Each line is one transaction:
//
//	0000000012,add,file,03/14/2024,09:30:01,"xenbus","8.2.0.41",,
//	0000000013,del,0000000012
//
// Parsing is skip-and-warn: a malformed line yields a *LineError and the scan
// continues with the next line.
package symstore
