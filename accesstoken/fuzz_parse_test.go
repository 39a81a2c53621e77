package accesstoken

import "testing"

// FuzzParse feeds arbitrary strings to the token parser.
// It must never panic, and any token it accepts must survive a rebuild.
func FuzzParse(f *testing.F) {
	valid, err := makeTestToken().Build()
	if err == nil {
		f.Add(valid)
		f.Add(valid[:len(valid)/2])
	}

	f.Add("")
	f.Add(Version)
	f.Add("007eJw=")
	f.Add("006" + valid)

	f.Fuzz(func(t *testing.T, data string) {
		token, err := Parse(data)
		if err != nil {
			return
		}

		for _, s := range token.Services() {
			_ = s.Pack()
		}
		_ = token.VerifySignature(testAppCertificate)
	})
}
