package signals

// DefaultSymbols are the top-market USDT pairs scanned when no list is given
var DefaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"DOGEUSDT", "ADAUSDT", "TRXUSDT", "AVAXUSDT", "LINKUSDT",
	"DOTUSDT", "MATICUSDT", "LTCUSDT", "BCHUSDT", "SHIBUSDT",
	"UNIUSDT", "ATOMUSDT", "XLMUSDT", "ETCUSDT", "NEARUSDT",
	"FILUSDT", "APTUSDT", "ARBUSDT", "OPUSDT", "INJUSDT",
	"SUIUSDT", "AAVEUSDT", "ALGOUSDT", "ICPUSDT", "HBARUSDT",
}
