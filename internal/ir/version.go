package ir

// EngineVersion is the pushsync engine version. The transport reports it in
// the User-Agent header.
const EngineVersion = "0.3.0"
