package privacy

import (
	"fmt"
	"regexp"
)

// Profile names of the built-in rule packs
const (
	ProfileConfidential = "confidential"
	ProfilePersonalData = "pdn"
)

// Category names shared by the built-in packs
const (
	CategoryPersonalData     = "personal_data"
	CategoryMedical          = "medical_info"
	CategoryFinancial        = "financial_info"
	CategoryCommercialSecret = "commercial_secret"
	CategoryBankSecret       = "bank_secret"
	CategoryTaxSecret        = "tax_secret"
	CategoryMilitary         = "military_info"
	CategoryCoordinates      = "coordinates"
	CategoryEmail            = "email"
	CategoryPhone            = "phone"
	CategoryPassport         = "passport"
	CategoryCreditCard       = "credit_card"
	CategoryCardNumber       = "card_number"
	CategoryINN              = "inn"
	CategorySNILS            = "snils"
	CategoryName             = "name"
	CategoryAddress          = "address"
	CategorySensitiveContext = "sensitive_context"
)

// Legal bases cited when a document is blocked
const (
	BasisPersonalData = "Федеральный закон от 27.07.2006 N 152-ФЗ 'О персональных данных'"
	BasisMedical      = "Федеральный закон от 21.11.2011 N 323-ФЗ 'Об основах охраны здоровья граждан в Российской Федерации'"
	BasisFinancial    = "Налоговый кодекс РФ, статья 102 'О налоговой тайне'"
	BasisCommercial   = "Федеральный закон от 29.07.2004 N 98-ФЗ 'О коммерческой тайне'"
	BasisBank         = "Федеральный закон от 02.12.1990 N 395-1 'О банках и банковской деятельности' (банковская тайна)"
	BasisTax          = "Налоговый кодекс РФ, статья 102 'Налоговая тайна'"
	BasisMilitary     = "Федеральный закон 'О государственной тайне' и 'Об обороне'"
	BasisStateSecret  = "Федеральный закон 'О государственной тайне'"
)

// ContextPhrases signal that the author considers the text confidential
var ContextPhrases = []string{
	"по секрету", "конфиденциально", "секретно", "не разглашай", "только между нами",
	"доверительно", "строго между нами", "никому не говори", "это секрет",
	"не распространяй", "секретная информация", "закрытые данные",
	"confidentially", "just between us", "keep this secret", "off the record",
	"do not share", "strictly confidential",
}

// lexical stems per category, Russian first then English
var lexicalRules = []struct {
	name  string
	expr  string
	basis string
}{
	{CategoryPersonalData, `пдн|персональн[а-я]*\s*данн[а-я]*|паспорт[а-я]*|фамили[а-я]*|им[ея]|отчеств[а-я]*|личн[а-я]*\s*данн[а-я]*|personal\s+data`, BasisPersonalData},
	{CategoryMedical, `диагноз[а-я]*|болезн[ьи]|заболевани[а-я]*|медицинск[а-я]*\s*данн[а-я]*|врач[а-я]*|лечени[а-я]*|ветрянк[а-я]*|заразн[а-я]*|diagnos[a-z]*|medical\s+records?`, BasisMedical},
	{CategoryFinancial, `заработ[а-я]*|оборот[а-я]*|доход[а-я]*|зарплат[а-я]*|финанс[а-я]*|фнс|налог[а-я]*|salar(?:y|ies)|revenues?`, BasisFinancial},
	{CategoryCommercialSecret, `коммерческ[а-я]*\s*тайн[а-я]*|формул[а-я]*|исследовани[а-я]*|ноу[-\s]*хау|секрет[а-я]*|trade\s+secrets?|know[-\s]*how`, BasisCommercial},
	{CategoryBankSecret, `банковск[а-я]*\s*тайн[а-я]*|счет[а-я]*|вклад[а-я]*|кредитн[а-я]*\s*истори[а-я]*|bank(?:ing)?\s+secrecy|credit\s+histor(?:y|ies)`, BasisBank},
	{CategoryTaxSecret, `налогов[а-я]*\s*тайн[а-я]*|деклараци[а-я]*|отчетност[а-я]*|tax\s+returns?|tax\s+secrecy`, BasisTax},
	{CategoryMilitary, `пусков[а-я]*\s*установ[а-я]*|военн[а-я]*|секретн[а-я]*\s*объект[а-я]*|полигон[а-я]*|стрельб[а-я]*|military|missile\s+launchers?`, BasisMilitary},
	{CategoryCoordinates, `\d+[.,]\d+\s*км|координат[а-я]*|местоположени[а-я]*|район[а-я]*|coordinates`, BasisStateSecret},
}

var (
	emailRe   = regexp.MustCompile(`\b([A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,})\b`)
	nameRe    = wordPattern(`[А-ЯЁ][а-яё]+\s+[А-ЯЁ][а-яё]+(?:\s+[А-ЯЁ][а-яё]+)?`, false)
	addressRe = wordPattern(`(?:ул\.|улица|пр\.|проспект|пер\.|переулок)\s+[А-Яа-яёЁ\-]+\s*,\s*(?:д\.|дом)\s*\d+(?:\s*,\s*(?:кв\.|квартира)\s*\d+)?`, false)
)

func emailRule() Rule {
	return Rule{Matchers: []Matcher{Regex(emailRe)}, Source: emailRe.String()}
}

func phoneRule() Rule {
	return Rule{Matchers: []Matcher{PhonePrimary(), PhoneSupplementary()}, Source: "grammar:phone"}
}

func cardRule() Rule {
	return Rule{Matchers: []Matcher{CardPrimary(), CardSupplementary()}, Source: "grammar:card"}
}

func contextRule(phrases []string) Rule {
	return Rule{Fold: true, Matchers: []Matcher{Phrases(phrases...)}, Source: "phrases:context"}
}

// ConfidentialRules builds the rule pack for confidential business and
// state information: lexical stems plus structured identifiers.
func ConfidentialRules() *Registry {
	r := NewRegistry(ProfileConfidential, BasisPersonalData)
	for _, lr := range lexicalRules {
		r.MustRegister(lr.name, Rule{Fold: true, Matchers: []Matcher{Words(lr.expr)}, Source: lr.expr}, lr.basis)
	}
	r.MustRegister(CategoryEmail, emailRule(), BasisPersonalData, WithMask(MaskEdges))
	r.MustRegister(CategoryPhone, phoneRule(), BasisPersonalData, WithMask(MaskPhone))
	r.MustRegister(CategoryPassport, Rule{Matchers: []Matcher{Passport()}, Source: "grammar:passport"}, BasisPersonalData, WithMask(MaskEdges))
	r.MustRegister(CategoryCreditCard, cardRule(), BasisBank, WithMask(MaskCard))
	r.MustRegister(CategoryINN, Rule{Matchers: []Matcher{INN()}, Source: "grammar:inn"}, BasisTax, WithMask(MaskEdges))
	r.MustRegister(CategorySensitiveContext, contextRule(ContextPhrases), "")
	return r
}

// PersonalDataRules builds the personal data (ПДн) anonymization pack
func PersonalDataRules() *Registry {
	r := NewRegistry(ProfilePersonalData, BasisPersonalData)
	r.MustRegister(CategoryPhone, phoneRule(), BasisPersonalData, WithMask(MaskPhone))
	r.MustRegister(CategoryEmail, emailRule(), BasisPersonalData, WithMask(MaskEdges))
	r.MustRegister(CategoryPassport, Rule{Matchers: []Matcher{Passport()}, Source: "grammar:passport"}, BasisPersonalData, WithMask(MaskEdges))
	r.MustRegister(CategorySNILS, Rule{Matchers: []Matcher{SNILS()}, Source: "grammar:snils"}, BasisPersonalData, WithMask(MaskEdges))
	r.MustRegister(CategoryINN, Rule{Matchers: []Matcher{INN()}, Source: "grammar:inn"}, BasisPersonalData, WithMask(MaskEdges))
	r.MustRegister(CategoryCardNumber, cardRule(), BasisPersonalData, WithMask(MaskCard))
	r.MustRegister(CategoryName, Rule{Matchers: []Matcher{&regexMatcher{re: nameRe, trailing: true}}, Source: nameRe.String()}, BasisPersonalData, WithMask(MaskName))
	r.MustRegister(CategoryAddress, Rule{Matchers: []Matcher{&regexMatcher{re: addressRe}}, Source: addressRe.String()}, BasisPersonalData, WithMask(MaskAddress))
	return r
}

// DefaultRegistry returns a fresh, mutable copy of a built-in pack
func DefaultRegistry(profile string) (*Registry, error) {
	switch profile {
	case "", ProfileConfidential:
		return ConfidentialRules(), nil
	case ProfilePersonalData:
		return PersonalDataRules(), nil
	default:
		return nil, fmt.Errorf("unknown rule profile: %s", profile)
	}
}
