package statementimport

import "strings"

const (
	colLineNumber      = "line_number"
	colTransactionDate = "transaction_date"
	colValueDate       = "value_date"
	colDescription     = "description"
	colReference       = "reference_number"
	colDebit           = "debit"
	colCredit          = "credit"
	colAmount          = "amount"
	colType            = "transaction_type"
	colBalance         = "balance"
	colPayeePayer      = "payee_payer"
)

var columnAliases = map[string][]string{
	colLineNumber:      {"line_number", "line", "line_no", "transaction_no", "trans_no", "#"},
	colTransactionDate: {"transaction_date", "trans_date", "date", "value_date", "posting_date"},
	colValueDate:       {"value_date", "effective_date", "settlement_date"},
	colDescription:     {"description", "details", "narrative", "particulars", "remarks"},
	colReference:       {"reference_number", "reference", "ref", "ref_no", "check_no", "cheque_no"},
	colDebit:           {"debit", "debit_amount", "withdrawal", "dr", "payment"},
	colCredit:          {"credit", "credit_amount", "deposit", "cr", "receipt"},
	colAmount:          {"amount", "transaction_amount", "trans_amount"},
	colType:            {"transaction_type", "type", "trans_type", "dr_cr"},
	colBalance:         {"balance", "running_balance", "balance_after", "closing_balance"},
	colPayeePayer:      {"payee_payer", "party", "counterparty", "beneficiary", "payee", "payer"},
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, " ", "")
}

// mapColumns returns the index of the first header matching each column's
// aliases. One header may serve two columns, e.g. "Value Date" alone.
func mapColumns(header []string) map[string]int {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}
	result := make(map[string]int, len(columnAliases))
	for col, aliases := range columnAliases {
	headers:
		for i, h := range normalized {
			for _, alias := range aliases {
				if h == normalizeHeader(alias) {
					result[col] = i
					break headers
				}
			}
		}
	}
	return result
}

func missingColumns(cols map[string]int) []string {
	var missing []string
	for _, col := range []string{colTransactionDate, colDescription} {
		if _, ok := cols[col]; !ok {
			missing = append(missing, col)
		}
	}
	_, debit := cols[colDebit]
	_, credit := cols[colCredit]
	_, amount := cols[colAmount]
	if !debit && !credit && !amount {
		missing = append(missing, "debit/credit or amount")
	}
	return missing
}
