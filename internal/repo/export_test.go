package repo

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"starter/internal/models"
)

type tag struct{ Label string }

func (t *tag) GetName() string { return t.Label }

type invoice struct {
	Number string
	Amount float64
	Paid   bool
	Issued time.Time
	Due    *time.Time
	Owner  *models.Role
	Tag    *tag
}

var invoices = &Schema[invoice]{
	Entity: "Invoice",
	Fields: []Field[invoice]{
		Text("Number", "number", func(i *invoice) string { return i.Number }),
		Decimal("Amount", "amount", func(i *invoice) float64 { return i.Amount }),
		Bool("Paid", "paid", func(i *invoice) bool { return i.Paid }),
		Time("Issued", "issued", func(i *invoice) time.Time { return i.Issued }),
		OptTime("Due", "due", func(i *invoice) *time.Time { return i.Due }),
		Ref("Owner", func(i *invoice) *models.Role { return i.Owner }),
		Ref("Tag", func(i *invoice) *tag { return i.Tag }),
	},
}

func TestEscapeCSV(t *testing.T) {
	cases := map[string]string{
		"plain":           "plain",
		"a,b":             `"a,b"`,
		`say "hi"`:        `"say ""hi"""`,
		"line1\nline2":    "\"line1\nline2\"",
		"":                "",
		`comma, "quoted"`: `"comma, ""quoted"""`,
	}
	for in, want := range cases {
		assert.Equal(t, want, EscapeCSV(in), "input %q", in)
	}
}

func TestEncodeCSVFormatting(t *testing.T) {
	issued := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	owner := &models.Role{Name: "Admin"}
	owner.ID = 42
	items := []*invoice{
		{Number: "INV-1, urgent", Amount: 10, Paid: true, Issued: issued, Owner: owner, Tag: &tag{Label: "vip"}},
		{Number: `the "big" one`, Amount: 3.14159, Issued: issued},
	}

	out := string(EncodeCSV(invoices, items))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Number,Amount,Paid,Issued,Due,Owner,Tag", lines[0])
	assert.Equal(t, `"INV-1, urgent",10.00,true,2024-03-05 14:07:09,,42,vip`, lines[1])
	assert.Equal(t, `"the ""big"" one",3.14,false,2024-03-05 14:07:09,,,`, lines[2])
}

func TestEncodeCSVEmpty(t *testing.T) {
	assert.Equal(t, "Number,Amount,Paid,Issued,Due,Owner,Tag\n", string(EncodeCSV(invoices, nil)))
}

func TestUserExportOmitsSecrets(t *testing.T) {
	u := &models.User{UserName: "bob", Email: "bob@example.com", PasswordHash: "secret-hash"}
	out := string(EncodeCSV(Users, []*models.User{u}))
	assert.NotContains(t, out, "secret-hash")
	assert.True(t, strings.HasPrefix(out, "Id,UserName,Email,"))
}

func TestEncodeXLSX(t *testing.T) {
	items := []*invoice{{Number: "INV-9", Amount: 1.5, Paid: true}}
	data, err := EncodeXLSX(invoices, items)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	v, err := f.GetCellValue("Invoice", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Number", v)
	v, err = f.GetCellValue("Invoice", "A2")
	require.NoError(t, err)
	assert.Equal(t, "INV-9", v)
	v, err = f.GetCellValue("Invoice", "B2")
	require.NoError(t, err)
	assert.Equal(t, "1.50", v)
}

func TestLookupIgnoresCase(t *testing.T) {
	f, ok := Users.Lookup("EMAIL")
	require.True(t, ok)
	assert.Equal(t, "email", f.Column)

	f, ok = Users.Lookup("user_name")
	require.True(t, ok)
	assert.Equal(t, "UserName", f.Name)

	_, ok = Users.Lookup("passwordHash")
	assert.False(t, ok)
}
