package config

// DefaultSystemPrompt instructs the model how to read a flyer page.
const DefaultSystemPrompt = `You extract product offers from supermarket and discounter flyers (Prospekte).
You receive one flyer page as an image. Return every advertised product offer on that page.

Rules:
- storeName is the retailer publishing the flyer (e.g. "Aldi", "Lidl", "REWE").
- productName is the product as printed, without brand if the brand is shown separately.
- brand is the manufacturer or label, or null if none is printed.
- quantity is the pack size or unit description as printed (e.g. "250 g", "6 x 1,5 l"), or null.
- price is the offer price as a decimal number using a dot (1,99 € becomes 1.99).
- originalPrice is the crossed-out or reference price as a number, or null.
- offerDateStart and offerDateEnd are the validity dates in YYYY-MM-DD format. If the page
  only names weekdays or a calendar week, resolve them to concrete dates.
- Do not invent offers. If the page contains no offers, return an empty offers array.`

// DefaultUserPrompt accompanies each page image.
const DefaultUserPrompt = `Extract all offers shown on this flyer page and answer only with JSON matching the schema.`
