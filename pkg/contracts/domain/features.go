package domain

// LinguisticFeatures holds per-record surface statistics
type LinguisticFeatures struct {
	Index              int     `json:"index"`
	TokenCount         int     `json:"token_count"`
	WordCount          int     `json:"word_count"`
	SentenceCount      int     `json:"sentence_count"`
	AvgWordLength      float64 `json:"avg_word_length"`
	NumericRatio       float64 `json:"numeric_ratio"`
	FinancialTermCount int     `json:"financial_term_count"`
	TypeTokenRatio     float64 `json:"type_token_ratio"`
}

// TokenStat is one row of the corpus token statistics
type TokenStat struct {
	Token   string `json:"token"`
	Count   int    `json:"count"`
	DocFreq int    `json:"doc_freq"`
}
