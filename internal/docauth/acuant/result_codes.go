package acuant

// ResultCode is Acuant's per-check and overall result vocabulary.
type ResultCode struct {
	Code   int
	Name   string
	Billed bool
}

// Result codes as documented for the AssureID results endpoint. Attention and
// Passed are billed outcomes; everything else is not.
var (
	ResultUnknown   = ResultCode{Code: 0, Name: "Unknown"}
	ResultPassed    = ResultCode{Code: 1, Name: "Passed", Billed: true}
	ResultFailed    = ResultCode{Code: 2, Name: "Failed"}
	ResultSkipped   = ResultCode{Code: 3, Name: "Skipped"}
	ResultCaution   = ResultCode{Code: 4, Name: "Caution"}
	ResultAttention = ResultCode{Code: 5, Name: "Attention", Billed: true}
)

var resultCodesByCode = map[int]ResultCode{
	ResultPassed.Code:    ResultPassed,
	ResultFailed.Code:    ResultFailed,
	ResultSkipped.Code:   ResultSkipped,
	ResultCaution.Code:   ResultCaution,
	ResultAttention.Code: ResultAttention,
}

// ResultCodeFromCode maps a numeric result code to its vocabulary entry,
// defaulting to Unknown for anything unrecognized.
func ResultCodeFromCode(code int) ResultCode {
	if rc, ok := resultCodesByCode[code]; ok {
		return rc
	}
	return ResultUnknown
}
