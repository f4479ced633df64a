package bot

import (
	"github.com/alnah/go-site2pdf/internal/catalog"
)

// Callback data carried by inline buttons.
const (
	actionContact        = "contact"
	actionNewPDF         = "new_pdf"
	actionChooseCategory = "choose_category"
)

const (
	textGreeting         = "Hi! Choose a category to find templates:"
	textChooseCategory   = "Choose a category:"
	textUnknownInput     = "Please choose one of the categories on the keyboard, or send /start."
	textWaiting          = "Here is a random template for %s: %s\n\nCreating the PDF... Please wait."
	textNoTemplates      = "Could not find templates for %s. Please try again."
	textRenderFailed     = "Could not create a PDF for %s. Please try again."
	textRenderTimeout    = "Creating the PDF took too long. Please try again later."
	textDeliveryFailed   = "The PDF was created but could not be sent. Please try again."
	textBusy             = "A PDF is already being created for you. Please wait for it to arrive."
	textThrottled        = "Too many requests. Please wait a moment and try again."
	textAskEmail         = "Please enter your email address."
	textInvalidEmail     = "That does not look like an email address. Please try again."
	textThanks           = "Thank you! We will contact you."
	textForwardFailed    = "Sorry, your request could not be delivered. Please try again later."
	textTemplateNotFound = "Error: template not found."
	textCategoryNotFound = "Error: category not found. Please choose one."
	textOperatorContact  = "New contact request:\nEmail: %s\nTemplate: %s"
	textDocumentCaption  = "Here is the sample site. Choose what to do next."

	buttonContact        = "I like it, please contact me"
	buttonNewPDF         = "Generate another PDF"
	buttonChooseCategory = "Choose another category"
)

// categoryKeyboard lays the catalog out two buttons per row.
func categoryKeyboard() *Keyboard {
	var rows [][]string
	for i := 0; i < len(catalog.Categories); i += 2 {
		row := []string{catalog.Categories[i].Name}
		if i+1 < len(catalog.Categories) {
			row = append(row, catalog.Categories[i+1].Name)
		}
		rows = append(rows, row)
	}
	return &Keyboard{Reply: rows}
}

// followUpKeyboard is attached to every delivered PDF.
func followUpKeyboard() *Keyboard {
	return &Keyboard{Inline: [][]InlineButton{
		{{Text: buttonContact, Data: actionContact}},
		{{Text: buttonNewPDF, Data: actionNewPDF}},
		{{Text: buttonChooseCategory, Data: actionChooseCategory}},
	}}
}
