package gateway

import "fmt"

// ErrCodeOrderNotFound is returned by Binance when an order id is unknown.
// The reconciler treats it as an implicit cancellation.
const ErrCodeOrderNotFound = -2013

// BinanceErrorCodes maps Binance API error codes to human-readable messages.
var BinanceErrorCodes = map[int]string{
	-1000: "UNKNOWN",                  // Unknown error while processing request
	-1003: "TOO_MANY_REQUESTS",        // Request weight or order rate exceeded
	-1013: "INVALID_MESSAGE",          // Filter failure (price/lot size)
	-1021: "INVALID_TIMESTAMP",        // Timestamp outside recvWindow
	-1022: "INVALID_SIGNATURE",        // Signature for this request is not valid
	-1100: "ILLEGAL_CHARS",            // Illegal characters found in a parameter
	-1111: "BAD_PRECISION",            // Precision over the maximum for this asset
	-1121: "BAD_SYMBOL",               // Invalid symbol
	-2010: "NEW_ORDER_REJECTED",       // Order rejected (balance, filters, state)
	-2011: "CANCEL_REJECTED",          // Cancel rejected (already closed, unknown)
	-2013: "NO_SUCH_ORDER",            // Order does not exist
	-2014: "BAD_API_KEY_FMT",          // API key format invalid
	-2015: "REJECTED_MBX_KEY",         // Invalid API key, IP, or permissions
	-2018: "BALANCE_NOT_SUFFICIENT",   // Futures: balance insufficient
	-2019: "MARGIN_NOT_SUFFICIENT",    // Futures: margin insufficient
	-2021: "ORDER_WOULD_IMMEDIATELY_TRIGGER", // Stop order would trigger at once
	-2022: "REDUCE_ONLY_REJECT",       // Reduce-only order rejected
	-4003: "QUANTITY_LESS_THAN_ZERO",  // Quantity must be positive
	-4013: "PRICE_LESS_THAN_MIN_PRICE",
	-4028: "INVALID_LEVERAGE",         // Leverage outside symbol bounds
	-4046: "NO_NEED_TO_CHANGE_MARGIN_TYPE",
	-4131: "MARKET_ORDER_REJECT",      // Counterparty price off the limits
}

// GetErrorMsg returns a human-readable message for a given Binance error
// code. If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := BinanceErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_BINANCE_ERROR_%d", code)
}
