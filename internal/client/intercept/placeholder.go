package intercept

import "strings"

// Offline placeholder bodies, fixed per endpoint. When a GET can be served
// neither from network nor cache, the caller receives one of these
// empty-but-well-typed shapes instead of an error; the UI must tolerate them.
const (
	placeholderTransactions = `{"transactions":[],"total":0,"totalPages":0,"currentPage":1}`
	placeholderList         = `[]`
	placeholderSummary      = `{"totalIncome":"0","totalExpense":"0","balance":"0","monthlyIncome":"0","monthlyExpense":"0"}`
	placeholderDefault      = `{}`
)

// placeholderFor returns the offline placeholder body for an API path.
func placeholderFor(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/transactions"):
		return placeholderTransactions
	case strings.HasPrefix(path, "/api/accounts"),
		strings.HasPrefix(path, "/api/categories"):
		return placeholderList
	case strings.HasPrefix(path, "/api/analytics"):
		return placeholderSummary
	}
	return placeholderDefault
}

// offlinePage is served for navigation requests when neither network nor a
// cached shell is available.
const offlinePage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>PocketLedger - offline</title></head>
<body>
<h1>You are offline</h1>
<p>PocketLedger keeps working offline. Changes are queued and will sync when connectivity returns.</p>
</body>
</html>`
