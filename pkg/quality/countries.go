package quality

import "strings"

// callingCodes maps countries to their ITU calling code. Countries sharing +1 or +7
// are listed so the prefix check still applies to them.
var callingCodes = map[string]string{
	"AE": "971", "AR": "54", "AT": "43", "AU": "61", "BE": "32", "BG": "359", "BR": "55",
	"CA": "1", "CH": "41", "CL": "56", "CN": "86", "CO": "57", "CY": "357", "CZ": "420",
	"DE": "49", "DK": "45", "EE": "372", "EG": "20", "ES": "34", "FI": "358", "FR": "33",
	"GB": "44", "GR": "30", "HK": "852", "HR": "385", "HU": "36", "ID": "62", "IE": "353",
	"IL": "972", "IN": "91", "IS": "354", "IT": "39", "JP": "81", "KR": "82", "KZ": "7",
	"LI": "423", "LT": "370", "LU": "352", "LV": "371", "MT": "356", "MX": "52", "MY": "60",
	"NG": "234", "NL": "31", "NO": "47", "NZ": "64", "PH": "63", "PL": "48", "PT": "351",
	"RO": "40", "RU": "7", "SA": "966", "SE": "46", "SG": "65", "SI": "386", "SK": "421",
	"TH": "66", "TR": "90", "TW": "886", "UA": "380", "US": "1", "VN": "84", "ZA": "27",
}

// taxPrefixAliases holds VAT prefixes that differ from the ISO code
var taxPrefixAliases = map[string]string{
	"EL": "GR",
	"XI": "GB",
}

// emailTLDAliases holds country TLDs that differ from the ISO code
var emailTLDAliases = map[string]string{
	"UK": "GB",
}

// genericCountryTLDs are country TLDs widely used without any link to the country
var genericCountryTLDs = toSet("AI CO FM GG IO LY ME TV WS")

func toSet(codes string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, code := range strings.Fields(codes) {
		set[code] = struct{}{}
	}
	return set
}

// isCountryCode reports whether code is an uppercase ISO 3166-1 alpha-2 code
func isCountryCode(code string) bool {
	return validate.Var(code, "iso3166_1_alpha2") == nil
}
