package csvimport

import (
	"strings"
	"testing"

	"github.com/alextreichler/libreserve/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "title,author,ISBN,publisher,availableAmount,coverPicture\n"

func TestParse(t *testing.T) {
	input := header +
		`"Dune, Deluxe",Frank Herbert,978-0441013593,Ace,4,https://img/dune.jpg` + "\n" +
		`"The ""Hobbit""",Tolkien,978-0547928227,HMH,abc,https://img/hobbit.jpg` + "\n" +
		"\n" +
		`,Nobody,123,Pub,1,https://img/x.jpg` + "\n" +
		`Short,Row` + "\n"

	res, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []models.BookInput{
		{Title: "Dune, Deluxe", Author: "Frank Herbert", ISBN: "978-0441013593", Publisher: "Ace", AvailableAmount: 4, CoverPicture: "https://img/dune.jpg"},
		{Title: `The "Hobbit"`, Author: "Tolkien", ISBN: "978-0547928227", Publisher: "HMH", AvailableAmount: 1, CoverPicture: "https://img/hobbit.jpg"},
	}, res.Books)

	assert.Equal(t, []Rejection{
		{Line: 5, Reason: "missing required field: title"},
		{Line: 6, Reason: "malformed row"},
	}, res.Rejected)
}

func TestParse_HeaderNormalization(t *testing.T) {
	input := "Title, Author ,\"isbn\",PUBLISHER,available amount,cover picture\n" +
		"A,B,C,D,0,E\n"
	res, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Books, 1)
	assert.Equal(t, 1, res.Books[0].AvailableAmount)
}

func TestParse_MissingColumns(t *testing.T) {
	_, err := Parse(strings.NewReader("title,author,publisher\nA,B,C\n"))
	require.Error(t, err)
	var mce *MissingColumnsError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, []string{"isbn", "availableamount", "coverpicture"}, mce.Columns)
	assert.Equal(t, "Missing required columns: isbn, availableamount, coverpicture", err.Error())
}

func TestParse_TooShort(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = Parse(strings.NewReader(header + "\n\n"))
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = Parse(strings.NewReader(header + "   \n\t\n ,  , \n"))
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestParse_SkipsWhitespaceLines(t *testing.T) {
	res, err := Parse(strings.NewReader(header + "   \nA,B,C,D,2,E\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Rejected)
	require.Len(t, res.Books, 1)
	assert.Equal(t, 2, res.Books[0].AvailableAmount)
}

func TestParse_NegativeAmount(t *testing.T) {
	res, err := Parse(strings.NewReader(header + "A,B,C,D,-5,E\n"))
	require.NoError(t, err)
	require.Len(t, res.Books, 1)
	assert.Equal(t, 1, res.Books[0].AvailableAmount)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]int{
		"3":    3,
		"12ab": 12,
		"":     1,
		"0":    1,
		"x":    1,
		"-2":   1,
		"-5x":  1,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseAmount(in), in)
	}
}
